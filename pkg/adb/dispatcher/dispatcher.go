// Package dispatcher 实现[DISPATCHER]组件：拥有传输连接、路由报文、
// 分配local-id、并在出错时拆除所有socket
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/goadb/hostbridge/pkg/adb/socket"
	"github.com/goadb/hostbridge/pkg/adb/transport"
	"github.com/goadb/hostbridge/pkg/adb/wire"
	log "github.com/goadb/hostbridge/pkg/utils/logger"
)

// Metrics 是Dispatcher可选的可观测性钩子，nil时为no-op
// 具体实现由pkg/adb/metrics基于prometheus/client_golang提供
type Metrics interface {
	PacketRouted(cmd wire.Command)
	SocketOpened()
	SocketClosed()
	BytesTransferred(n int)
}

type noopMetrics struct{}

func (noopMetrics) PacketRouted(wire.Command)  {}
func (noopMetrics) SocketOpened()              {}
func (noopMetrics) SocketClosed()              {}
func (noopMetrics) BytesTransferred(int)       {}

type openWaiter struct {
	resultCh chan openResult
}

type openResult struct {
	sock *socket.Socket
	err  error
}

// Dispatcher 在握手完成之后创建，拥有一个transport.Transport实例
type Dispatcher struct {
	t                transport.Transport
	maxPayload       uint32
	checksumRequired bool
	handler          IncomingHandler
	metrics          Metrics

	mu          sync.Mutex
	sockets     map[uint32]*socket.Socket
	openWaiters map[uint32]*openWaiter
	nextLocalID uint32

	writeMu sync.Mutex // transport写入的单一邮箱，防止头部/负载交错

	closedOnce sync.Once
	closeErr   error
	doneCh     chan struct{}
}

// Option 配置Dispatcher的可选行为
type Option func(*Dispatcher)

// WithIncomingHandler 注册[INCOMING]钩子，用于处理设备主动发起的OPEN
func WithIncomingHandler(h IncomingHandler) Option {
	return func(d *Dispatcher) { d.handler = h }
}

// WithMetrics 注入可观测性实现（例如pkg/adb/metrics.New()）
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New 创建一个Dispatcher并立即在后台启动其路由循环
// maxPayload/checksumRequired应来自pkg/adb/auth.Connect的握手结果
func New(t transport.Transport, maxPayload uint32, checksumRequired bool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		t:                t,
		maxPayload:       maxPayload,
		checksumRequired: checksumRequired,
		metrics:          noopMetrics{},
		sockets:          make(map[uint32]*socket.Socket),
		openWaiters:      make(map[uint32]*openWaiter),
		nextLocalID:      1,
		doneCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	t.SetNegotiated(maxPayload, checksumRequired)
	go d.run()
	return d
}

// Done 在拆除完成后关闭
func (d *Dispatcher) Done() <-chan struct{} { return d.doneCh }

// Err 返回导致拆除的错误，运行中为nil；Close()同样经由拆除结束，
// 之后返回包装了ErrTransportFailed的错误
func (d *Dispatcher) Err() error {
	select {
	case <-d.doneCh:
		return d.closeErr
	default:
		return nil
	}
}

// Close 主动拆除dispatcher：关闭transport，唤醒路由循环使其退出
func (d *Dispatcher) Close() error {
	return d.t.Close()
}

// ---- socket.Outbound ----

func (d *Dispatcher) SendWrte(localID, remoteID uint32, payload []byte) error {
	return d.sendPacket(wire.CmdWRTE, localID, remoteID, payload)
}

func (d *Dispatcher) SendClse(localID, remoteID uint32) error {
	return d.sendPacket(wire.CmdCLSE, localID, remoteID, nil)
}

func (d *Dispatcher) sendPacket(cmd wire.Command, arg0, arg1 uint32, payload []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	err := d.t.Send(&wire.Packet{Command: cmd, Arg0: arg0, Arg1: arg1, Payload: payload})
	if err == nil {
		d.metrics.PacketRouted(cmd)
		if len(payload) > 0 {
			d.metrics.BytesTransferred(len(payload))
		}
	}
	return err
}

// allocateLocalIDLocked 分配下一个未被占用的非零local-id，处理2^32回绕时跳过
// 0和表中仍在使用的id（调用方必须持有d.mu）
func (d *Dispatcher) allocateLocalIDLocked() uint32 {
	for {
		id := d.nextLocalID
		d.nextLocalID++
		if d.nextLocalID == 0 {
			d.nextLocalID = 1 // 回绕时跳过0
		}
		if id == 0 {
			continue
		}
		if _, inUse := d.sockets[id]; inUse {
			continue
		}
		return id
	}
}

// Open 向serviceString发起一个本地发起的socket，阻塞直到对端回复OKAY/CLSE
// 或ctx被取消。取消会发送CLSE(localId,0)并移除表项（spec §9(a)的显式取消）
func (d *Dispatcher) Open(ctx context.Context, serviceString string) (*socket.Socket, error) {
	d.mu.Lock()
	localID := d.allocateLocalIDLocked()
	sock := socket.NewSocket(localID, 0, serviceString, true, d, d.maxPayload)
	d.sockets[localID] = sock
	waiter := &openWaiter{resultCh: make(chan openResult, 1)}
	d.openWaiters[localID] = waiter
	d.mu.Unlock()

	payload := append([]byte(serviceString), 0)
	if err := d.sendPacket(wire.CmdOPEN, localID, 0, payload); err != nil {
		d.cleanupFailedOpen(localID)
		return nil, fmt.Errorf("send OPEN: %w", err)
	}
	d.metrics.SocketOpened()

	select {
	case res := <-waiter.resultCh:
		return res.sock, res.err
	case <-ctx.Done():
		d.cleanupFailedOpen(localID)
		d.sendPacket(wire.CmdCLSE, localID, 0, nil)
		return nil, ctx.Err()
	case <-d.doneCh:
		return nil, fmt.Errorf("%w: %v", ErrTransportFailed, d.closeErr)
	}
}

func (d *Dispatcher) cleanupFailedOpen(localID uint32) {
	d.mu.Lock()
	delete(d.sockets, localID)
	delete(d.openWaiters, localID)
	d.mu.Unlock()
}

func (d *Dispatcher) resolveOpener(localID uint32, res openResult) {
	d.mu.Lock()
	waiter, ok := d.openWaiters[localID]
	if ok {
		delete(d.openWaiters, localID)
	}
	d.mu.Unlock()
	if ok {
		waiter.resultCh <- res
	}
}

func (d *Dispatcher) getSocket(localID uint32) (*socket.Socket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sockets[localID]
	return s, ok
}

func (d *Dispatcher) removeSocket(localID uint32) {
	d.mu.Lock()
	delete(d.sockets, localID)
	d.mu.Unlock()
}

// run是唯一的路由循环：读取传输、按命令分派、在传输失败时拆除全部状态
func (d *Dispatcher) run() {
	for {
		pkt, err := d.t.Recv()
		if err != nil {
			d.teardown(fmt.Errorf("%w: %v", ErrTransportFailed, err))
			return
		}
		if fatal := d.handlePacket(pkt); fatal != nil {
			d.teardown(fatal)
			return
		}
	}
}

func (d *Dispatcher) handlePacket(pkt *wire.Packet) error {
	d.metrics.PacketRouted(pkt.Command)

	switch pkt.Command {
	case wire.CmdWRTE:
		d.handleWrte(pkt)
	case wire.CmdOKAY:
		d.handleOkay(pkt)
	case wire.CmdCLSE:
		d.handleClse(pkt)
	case wire.CmdOPEN:
		d.handleOpen(pkt)
	case wire.CmdSYNC:
		// 历史上的keepalive，允许忽略
	default:
		return fmt.Errorf("%w: %v", ErrProtocolViolation, pkt.Command)
	}
	return nil
}

func (d *Dispatcher) handleWrte(pkt *wire.Packet) {
	peerID := pkt.Arg0
	localID := pkt.Arg1

	if uint32(len(pkt.Payload)) > d.maxPayload {
		// 致命：对端违反了协商好的最大负载
		d.teardown(fmt.Errorf("%w: WRTE payload %d exceeds max %d", ErrProtocolViolation, len(pkt.Payload), d.maxPayload))
		return
	}

	sock, ok := d.getSocket(localID)
	if !ok || sock.State() == socket.StateOpening {
		d.sendPacket(wire.CmdCLSE, 0, peerID, nil)
		return
	}

	// 必须先入队，再发送OKAY：避免对端在我们确认接收之前继续发送，
	// 从而让队列无限增长
	sock.EnqueueInbound(pkt.Payload)
	d.metrics.BytesTransferred(len(pkt.Payload))
	d.sendPacket(wire.CmdOKAY, localID, peerID, nil)
}

func (d *Dispatcher) handleOkay(pkt *wire.Packet) {
	peerID := pkt.Arg0
	localID := pkt.Arg1

	sock, ok := d.getSocket(localID)
	if !ok {
		return // spurious OKAY for unknown socket: silently dropped
	}

	switch sock.State() {
	case socket.StateOpening:
		sock.MarkEstablished(peerID)
		d.resolveOpener(localID, openResult{sock: sock})
	case socket.StateEstablished:
		sock.ResolvePendingAck()
	default:
		// 关闭中/已关闭: 伪造的OKAY，忽略
	}
}

func (d *Dispatcher) handleClse(pkt *wire.Packet) {
	localID := pkt.Arg1

	sock, ok := d.getSocket(localID)
	if !ok {
		return // CLSE for unknown local-id: silently dropped
	}

	if sock.State() == socket.StateOpening {
		d.resolveOpener(localID, openResult{err: ErrServiceUnavailable})
		d.removeSocket(localID)
		return
	}

	if sock.State() == socket.StateHalfClosed {
		// 我们先发起了关闭，这是对端的确认
		sock.DisposeFromPeerClose()
	} else {
		// 对端率先发起关闭：回复我们自己的CLSE并立即释放
		sock.Close()
		sock.DisposeFromPeerClose()
	}
	d.removeSocket(localID)
	d.metrics.SocketClosed()
}

func (d *Dispatcher) handleOpen(pkt *wire.Packet) {
	peerID := pkt.Arg0
	serviceString := trimNulSuffix(pkt.Payload)

	if d.handler == nil || !d.handler.HandleIncoming(serviceString, peerID) {
		d.sendPacket(wire.CmdCLSE, 0, peerID, nil)
		return
	}

	d.mu.Lock()
	localID := d.allocateLocalIDLocked()
	sock := socket.NewSocket(localID, peerID, serviceString, false, d, d.maxPayload)
	d.sockets[localID] = sock
	d.mu.Unlock()

	if err := d.sendPacket(wire.CmdOKAY, localID, peerID, nil); err != nil {
		d.removeSocket(localID)
		return
	}
	d.metrics.SocketOpened()
	d.handler.OnOpened(sock)
}

func trimNulSuffix(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// teardown在传输失败或协议违规后运行一次：拆除所有socket和挂起的open()调用
func (d *Dispatcher) teardown(cause error) {
	d.closedOnce.Do(func() {
		log.Errorf("dispatcher: tearing down: %v", cause)

		d.mu.Lock()
		sockets := make([]*socket.Socket, 0, len(d.sockets))
		for _, s := range d.sockets {
			sockets = append(sockets, s)
		}
		waiters := make([]*openWaiter, 0, len(d.openWaiters))
		for _, w := range d.openWaiters {
			waiters = append(waiters, w)
		}
		d.sockets = make(map[uint32]*socket.Socket)
		d.openWaiters = make(map[uint32]*openWaiter)
		d.mu.Unlock()

		var combined error
		for _, s := range sockets {
			s.DisposeFromTeardown()
			d.metrics.SocketClosed()
		}
		for _, w := range waiters {
			w.resultCh <- openResult{err: cause}
		}
		combined = multierr.Append(combined, cause)
		combined = multierr.Append(combined, d.t.Close())

		d.closeErr = combined
		close(d.doneCh)
	})
}

var _ socket.Outbound = (*Dispatcher)(nil)
