// Package crypto 提供AES-256-GCM帧封装，供pairing会话加密长期身份信息使用
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	GcmNonceLen = 12                      // GCM模式的Nonce(IV)长度
	GcmTagLen   = 16                      // GCM模式的MAC标签长度
	OverheadLen = GcmNonceLen + GcmTagLen // 总开销（IV + TAG）
)

// GenerateRandomBytes生成指定长度的随机字节
func GenerateRandomBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}

// EncryptAESGCM用key加密plaintext，附带aad作为关联数据，返回nonce||ciphertext||tag
func EncryptAESGCM(key, plaintext, aad []byte) ([]byte, error) {
	iv, err := GenerateRandomBytes(GcmNonceLen)
	if err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return aesgcm.Seal(iv, iv, plaintext, aad), nil
}

// DecryptAESGCM解密EncryptAESGCM产生的帧，aad必须与加密时一致
func DecryptAESGCM(key, cipherData, aad []byte) ([]byte, error) {
	if len(cipherData) < GcmNonceLen+GcmTagLen {
		return nil, fmt.Errorf("cipher data too short: need at least %d bytes", GcmNonceLen+GcmTagLen)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	iv, ciphertext := cipherData[:GcmNonceLen], cipherData[GcmNonceLen:]
	plaintext, err := aesgcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return plaintext, nil
}
