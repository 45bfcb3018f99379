// Package auth 实现[AUTH]组件：banner交换与RSA挑战应答认证
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/goadb/hostbridge/pkg/adb/wire"
	log "github.com/goadb/hostbridge/pkg/utils/logger"
)

// Result 是握手成功后协商出的连接状态
type Result struct {
	Version          uint32
	MaxPayload       uint32
	PeerBanner       string
	ChecksumRequired bool
}

// Recver/Sender 是Connect所需的最小传输能力，由transport.Transport满足
type Recver interface {
	Recv() (*wire.Packet, error)
}
type Sender interface {
	Send(p *wire.Packet) error
}

// Options 配置本端在握手中提议的参数
type Options struct {
	Version    uint32
	MaxPayload uint32
	// Features 拼接到banner的host::features=中
	Features []string
	// Keys 依次尝试的候选私钥，用尽后转为提议公钥
	Keys []*rsa.PrivateKey
	// PublicKeyLabel 附加在AUTH(RSAPUBLICKEY)公钥之后的用户标签，例如"user@host"
	PublicKeyLabel string
}

func (o Options) banner() string {
	if len(o.Features) == 0 {
		return "host::"
	}
	return "host::features=" + strings.Join(o.Features, ",")
}

// Connect 在dispatcher开始路由之前执行一次握手：发送CNXN，
// 按需完成AUTH挑战应答循环，返回协商结果
func Connect(rw interface {
	Recver
	Sender
}, opts Options) (*Result, error) {
	banner := opts.banner()
	if err := rw.Send(&wire.Packet{
		Command: wire.CmdCNXN,
		Arg0:    opts.Version,
		Arg1:    opts.MaxPayload,
		Payload: []byte(banner),
	}); err != nil {
		return nil, fmt.Errorf("send CNXN: %w", err)
	}

	keyIdx := 0
	pubkeyOffered := false

	for {
		pkt, err := rw.Recv()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}

		switch pkt.Command {
		case wire.CmdCNXN:
			version := opts.Version
			if pkt.Arg0 < version {
				version = pkt.Arg0
			}
			maxPayload := opts.MaxPayload
			if pkt.Arg1 < maxPayload {
				maxPayload = pkt.Arg1
			}
			if maxPayload < wire.MinPayload {
				maxPayload = wire.MinPayload
			}
			res := &Result{
				Version:          version,
				MaxPayload:       maxPayload,
				PeerBanner:       string(pkt.Payload),
				ChecksumRequired: wire.ChecksumRequired(version),
			}
			log.Infof("auth: handshake complete version=0x%08x maxPayload=%d", res.Version, res.MaxPayload)
			return res, nil

		case wire.CmdAUTH:
			if pkt.Arg0 != wire.AuthToken {
				return nil, fmt.Errorf("%w: unexpected AUTH arg0=%d", ErrProtocolViolation, pkt.Arg0)
			}
			token := pkt.Payload

			if keyIdx < len(opts.Keys) {
				sig, err := signToken(opts.Keys[keyIdx], token)
				keyIdx++
				if err != nil {
					return nil, fmt.Errorf("sign auth token: %w", err)
				}
				if err := rw.Send(&wire.Packet{Command: wire.CmdAUTH, Arg0: wire.AuthSignature, Payload: sig}); err != nil {
					return nil, fmt.Errorf("send AUTH signature: %w", err)
				}
				continue
			}

			if !pubkeyOffered && len(opts.Keys) > 0 {
				pubkeyOffered = true
				label := opts.PublicKeyLabel
				if label == "" {
					label = "unknown@host"
				}
				encoded, err := encodeMincryptPublicKey(&opts.Keys[0].PublicKey, label)
				if err != nil {
					return nil, fmt.Errorf("encode public key: %w", err)
				}
				if err := rw.Send(&wire.Packet{Command: wire.CmdAUTH, Arg0: wire.AuthRSAPublicKey, Payload: append([]byte(encoded), 0)}); err != nil {
					return nil, fmt.Errorf("send AUTH public key: %w", err)
				}
				continue
			}

			return nil, ErrNoKeys

		default:
			return nil, fmt.Errorf("%w: command=%v during handshake", ErrProtocolViolation, pkt.Command)
		}
	}
}

// signToken签署ADB的20字节挑战token
// adb主机侧的签名是RSA_sign(NID_sha1, token, 20, ...)：把这20字节token当作
// 一个SHA-1摘要来签，PKCS#1v1.5填充里带着SHA-1的DigestInfo ASN.1前缀，
// adbd的mincrypt验证器正是按这个前缀+token比对的。对应到Go标准库，
// 这就是以crypto.SHA1调用SignPKCS1v15，不能传crypto.Hash(0)——那样会丢掉
// DigestInfo前缀，产出的签名设备侧校验不过
func signToken(key *rsa.PrivateKey, token []byte) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, token)
}
