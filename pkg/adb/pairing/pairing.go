// Package pairing 实现补充特性[PAIRING]：adb的无线配对握手
// 基于X25519密钥协商与HKDF派生的AES-GCM传输密钥，推导方式借鉴了
// HiChain PAKE v1的密钥派生风格（见device_auth/hichain/pake_v1_ec.go），
// 但协议步骤改写为ADB已发布的配对握手：双方各自生成X25519密钥对，
// 交换公钥，派生共享密钥，再用它加密交换长期身份信息
package pairing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/goadb/hostbridge/pkg/utils/crypto"
	log "github.com/goadb/hostbridge/pkg/utils/logger"
)

const (
	sharedKeyLen = 32
	hkdfInfo     = "adb pairing"
)

// KeyPair 是一次配对会话使用的X25519密钥对
type KeyPair struct {
	private [32]byte
	Public  [32]byte
}

// GenerateKeyPair 生成一个新的X25519密钥对
func GenerateKeyPair() (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(rand.Reader, kp.private[:]); err != nil {
		return nil, fmt.Errorf("generate x25519 private key: %w", err)
	}
	// clamp per RFC 7748
	kp.private[0] &= 248
	kp.private[31] &= 127
	kp.private[31] |= 64

	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive x25519 public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// SharedKey 通过ECDH计算与对端公钥的共享密钥，随后用HKDF-SHA256派生出
// 一把32字节AES-256-GCM传输密钥
func (kp *KeyPair) SharedKey(peerPublic [32]byte, salt []byte) ([]byte, error) {
	shared, err := curve25519.X25519(kp.private[:], peerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("x25519 shared secret: %w", err)
	}

	h := hkdf.New(sha256.New, shared, salt, []byte(hkdfInfo))
	key := make([]byte, sharedKeyLen)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("hkdf derive: %w", err)
	}
	return key, nil
}

// Session 是配对握手成功后用于加密后续PeerInfo交换的AEAD会话
// 封装格式委托给utils/crypto的AES-GCM帧实现
type Session struct {
	key []byte
}

// NewSession 用派生出的传输密钥构造一个AES-GCM AEAD会话
func NewSession(key []byte) (*Session, error) {
	if len(key) != sharedKeyLen {
		return nil, fmt.Errorf("pairing: key must be %d bytes, got %d", sharedKeyLen, len(key))
	}
	return &Session{key: key}, nil
}

// Seal加密plaintext，返回 nonce||ciphertext||tag
func (s *Session) Seal(plaintext, aad []byte) ([]byte, error) {
	return crypto.EncryptAESGCM(s.key, plaintext, aad)
}

// Open解密Seal产生的帧
func (s *Session) Open(sealed, aad []byte) ([]byte, error) {
	pt, err := crypto.DecryptAESGCM(s.key, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("pairing: open failed: %w", err)
	}
	return pt, nil
}

// PeerInfo is the long-term identity exchanged once the transport key is
// established: the device's public key fingerprint and a human label,
// mirroring what adb's pairing service persists after a successful pairing.
type PeerInfo struct {
	GUID  string
	Label string
}

// encodePeerInfo序列化为一个简单的TLV：每个字段前置一个uint16长度
func encodePeerInfo(info PeerInfo) []byte {
	guid, label := []byte(info.GUID), []byte(info.Label)
	buf := make([]byte, 2+len(guid)+2+len(label))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(guid)))
	copy(buf[2:2+len(guid)], guid)
	off := 2 + len(guid)
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(label)))
	copy(buf[off+2:], label)
	return buf
}

// decodePeerInfo是encodePeerInfo的逆操作
func decodePeerInfo(b []byte) (PeerInfo, error) {
	if len(b) < 2 {
		return PeerInfo{}, fmt.Errorf("pairing: peer info truncated")
	}
	guidLen := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b) < 2+guidLen+2 {
		return PeerInfo{}, fmt.Errorf("pairing: peer info truncated")
	}
	guid := string(b[2 : 2+guidLen])
	rest := b[2+guidLen:]
	labelLen := int(binary.LittleEndian.Uint16(rest[0:2]))
	if len(rest) < 2+labelLen {
		return PeerInfo{}, fmt.Errorf("pairing: peer info truncated")
	}
	label := string(rest[2 : 2+labelLen])
	return PeerInfo{GUID: guid, Label: label}, nil
}

// SealPeerInfo加密一份长期身份信息，供配对握手确认阶段发送给对端
func (s *Session) SealPeerInfo(info PeerInfo) ([]byte, error) {
	return s.Seal(encodePeerInfo(info), nil)
}

// OpenPeerInfo解密SealPeerInfo产生的帧，得到对端的长期身份信息
func (s *Session) OpenPeerInfo(sealed []byte) (PeerInfo, error) {
	pt, err := s.Open(sealed, nil)
	if err != nil {
		return PeerInfo{}, err
	}
	return decodePeerInfo(pt)
}

// Handshake 执行一次完整的配对密钥协商并返回建立好的会话
// salt通常是配对码派生的附加熵（例如输入的6位配对码的SHA256），
// 由调用方在两端之间带外传递或通过配对服务预置
func Handshake(localPriv *KeyPair, peerPublic [32]byte, salt []byte) (*Session, error) {
	key, err := localPriv.SharedKey(peerPublic, salt)
	if err != nil {
		return nil, err
	}
	log.Debugf("pairing: derived transport key from x25519 shared secret")
	return NewSession(key)
}
