package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/goadb/hostbridge/pkg/utils/logger"
)

// KeyPairSize is the RSA modulus size used for newly generated host keys.
const KeyPairSize = 2048

// KeyStore 是一个"外部密钥提供者"（spec §6："authenticator's private keys
// from external key provider"），在给定目录下以PEM文件持久化RSA密钥对
type KeyStore struct {
	dir string
}

// NewKeyStore 使用dir作为密钥存放目录（不存在则创建）
func NewKeyStore(dir string) *KeyStore {
	return &KeyStore{dir: dir}
}

// LoadOrCreate 加载dir下已有的私钥文件，若目录为空则生成一个新的密钥对并写盘
func (k *KeyStore) LoadOrCreate() ([]*rsa.PrivateKey, error) {
	if err := os.MkdirAll(k.dir, 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}

	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil, fmt.Errorf("read key dir: %w", err)
	}

	var keys []*rsa.PrivateKey
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pem" {
			continue
		}
		key, err := loadPrivateKeyPEM(filepath.Join(k.dir, e.Name()))
		if err != nil {
			log.Warnf("auth: skipping unreadable key %s: %v", e.Name(), err)
			continue
		}
		keys = append(keys, key)
	}

	if len(keys) > 0 {
		return keys, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, KeyPairSize)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	if err := savePrivateKeyPEM(filepath.Join(k.dir, "adbkey.pem"), key); err != nil {
		return nil, fmt.Errorf("save host key: %w", err)
	}
	log.Infof("auth: generated new host key pair in %s", k.dir)
	return []*rsa.PrivateKey{key}, nil
}

func loadPrivateKeyPEM(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func savePrivateKeyPEM(path string, key *rsa.PrivateKey) error {
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, block)
}
