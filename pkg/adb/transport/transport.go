// Package transport 定义了ADB主机端与设备之间双工报文流的抽象接口
// （对应[TRANSPORT]组件），并提供基于net.Conn的具体实现
package transport

import (
	"context"

	"github.com/goadb/hostbridge/pkg/adb/wire"
)

// Transport 是一个双工的、已解码报文的抽象通道
// Recv在连接断开时返回io.EOF；Send在报文交付失败时返回错误
// 物理分帧（例如一次USB bulk读取24字节头部、再一次读取负载）由具体实现负责
type Transport interface {
	// Send 发送一个报文，直到写入完成或失败才返回
	Send(p *wire.Packet) error
	// Recv 阻塞直到下一个报文到达，连接结束时返回io.EOF
	Recv() (*wire.Packet, error)
	// Close 关闭底层连接，唤醒所有阻塞的Send/Recv
	Close() error

	// MaxPayload/ChecksumRequired反映本次连接协商后的当前状态
	// Dispatcher在握手完成后通过SetNegotiated更新它们
	SetNegotiated(maxPayload uint32, checksumRequired bool)
}

// Dialer 是可以建立Transport连接的工厂，供上层（如cmd/adb-host-cli）使用
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}
