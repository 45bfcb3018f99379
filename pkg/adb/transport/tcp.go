package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/goadb/hostbridge/pkg/adb/wire"
	log "github.com/goadb/hostbridge/pkg/utils/logger"
	"golang.org/x/net/proxy"
)

// tcpTransport 承载在net.Conn之上的Transport实现，用于连接adbd的tcp:5555
// 监听端口或本地模拟器，写入路径通过互斥锁串行化以保证头部与负载不交错
// （对应spec §5"多线程实现必须将所有传输写入串行化到单一邮箱"的要求）
type tcpTransport struct {
	conn net.Conn

	writeMu sync.Mutex

	maxPayload       atomic.Uint32
	checksumRequired atomic.Bool
}

// NewTCP 包装一个已建立的net.Conn为Transport，初始协商参数使用协议默认值
func NewTCP(conn net.Conn) Transport {
	t := &tcpTransport{conn: conn}
	t.maxPayload.Store(wire.DefaultPayload)
	t.checksumRequired.Store(true)
	return t
}

// TCPDialer 通过net.Dial或（可选）SOCKS代理拨号到adb TCP端点
type TCPDialer struct {
	// ProxyURL 如果非空，通过golang.org/x/net/proxy拨号（例如"socks5://127.0.0.1:1080"）
	ProxyURL string
}

func (d *TCPDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	if d.ProxyURL != "" {
		u, err := parseProxyURL(d.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("build proxy dialer: %w", err)
		}
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("proxy dial %s: %w", addr, err)
		}
		return NewTCP(conn), nil
	}

	var d2 net.Dialer
	conn, err := d2.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewTCP(conn), nil
}

func (t *tcpTransport) SetNegotiated(maxPayload uint32, checksumRequired bool) {
	t.maxPayload.Store(maxPayload)
	t.checksumRequired.Store(checksumRequired)
	log.Debugf("transport: negotiated maxPayload=%d checksumRequired=%v", maxPayload, checksumRequired)
}

func (t *tcpTransport) Send(p *wire.Packet) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return wire.WriteTo(t.conn, p, t.checksumRequired.Load())
}

func (t *tcpTransport) Recv() (*wire.Packet, error) {
	return wire.ReadFrom(t.conn, t.maxPayload.Load(), t.checksumRequired.Load())
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}
