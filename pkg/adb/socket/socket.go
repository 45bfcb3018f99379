// Package socket 实现[SOCKET]组件：承载在单一分发器之上的逻辑双工字节流通道
package socket

import (
	"context"
	"fmt"
	"sync"

	log "github.com/goadb/hostbridge/pkg/utils/logger"
)

// State 是逻辑socket的生命周期状态
type State int32

const (
	StateOpening State = iota
	StateEstablished
	StateHalfClosed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateHalfClosed:
		return "HALF_CLOSED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// inboundQueueDepth限制单个socket的入站缓冲深度：dispatcher的路由循环
// 是唯一的写入方，一旦队列写满会阻塞路由循环直到消费者读走数据
// 这是一种有意的背压设计，而不是无限增长的队列
const inboundQueueDepth = 64

// Outbound 是Socket向底层分发器发送控制/数据报文所需的最小接口
// Socket通过它发出WRTE/CLSE，从而不必知道分发器的其余细节
// （对应spec §9(a)关于打破socket<->dispatcher循环引用的讨论：
// Go的GC能安全处理引用环，这里用接口只是为了缩小依赖面）
type Outbound interface {
	SendWrte(localID, remoteID uint32, payload []byte) error
	SendClse(localID, remoteID uint32) error
}

// Socket 是一个逻辑双工通道，标识为(localID, remoteID)
type Socket struct {
	LocalID       uint32
	ServiceString string
	LocalCreated  bool

	mu        sync.Mutex
	remoteID  uint32
	state     State
	pending   chan error // 非nil表示当前有一个WRTE在等待OKAY
	writeMu   sync.Mutex // 串行化Write调用，保证"至多一个在途WRTE"

	inbound chan []byte

	out        Outbound
	maxPayload uint32
}

// NewSocket 由dispatcher在OPEN成功分配localID时创建
func NewSocket(localID uint32, remoteID uint32, serviceString string, localCreated bool, out Outbound, maxPayload uint32) *Socket {
	s := &Socket{
		LocalID:       localID,
		remoteID:      remoteID,
		ServiceString: serviceString,
		LocalCreated:  localCreated,
		state:         StateOpening,
		inbound:       make(chan []byte, inboundQueueDepth),
		out:           out,
		maxPayload:    maxPayload,
	}
	if remoteID != 0 {
		s.state = StateEstablished
	}
	return s
}

// State 返回当前状态（供测试与诊断使用）
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteID 返回已学习到的对端id，OPENING阶段可能为0
func (s *Socket) RemoteID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// MarkEstablished 在收到首个OKAY（本地发起）时由dispatcher调用
func (s *Socket) MarkEstablished(remoteID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpening {
		return
	}
	s.remoteID = remoteID
	s.state = StateEstablished
}

// ResolvePendingAck 在收到ESTABLISHED状态下的OKAY时由dispatcher调用
// 没有在途写入时静默忽略（spec §4.4："OKAY with no write pending = silently dropped"）
func (s *Socket) ResolvePendingAck() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if pending != nil {
		pending <- nil
		close(pending)
	}
}

// Write 把p按maxPayload切块顺序发送，每块都必须等待对应OKAY后才发送下一块
func (s *Socket) Write(ctx context.Context, p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for len(p) > 0 {
		n := int(s.maxPayload)
		if n > len(p) {
			n = len(p)
		}
		chunk := p[:n]
		p = p[n:]

		s.mu.Lock()
		if s.state != StateEstablished {
			s.mu.Unlock()
			return ErrSocketClosed
		}
		ack := make(chan error, 1)
		s.pending = ack
		remoteID := s.remoteID
		s.mu.Unlock()

		if err := s.out.SendWrte(s.LocalID, remoteID, chunk); err != nil {
			return fmt.Errorf("send WRTE: %w", err)
		}

		select {
		case err, ok := <-ack:
			if !ok || err != nil {
				return ErrSocketClosed
			}
		case <-ctx.Done():
			// 取消挂起写入不受支持（spec §5）：一旦WRTE上线，必须等待OKAY
			// 或者关闭socket作为取消原语。这里选择后者。
			s.Close()
			return ctx.Err()
		}
	}
	return nil
}

// Read 返回下一段有序到达的负载；socket关闭后返回ErrSocketClosed
func (s *Socket) Read(ctx context.Context) ([]byte, error) {
	select {
	case chunk, ok := <-s.inbound:
		if !ok {
			return nil, ErrSocketClosed
		}
		return chunk, nil
	case <-ctx.Done():
		// 取消一个存活的读操作会发起关闭（spec §4.3）
		s.Close()
		return nil, ctx.Err()
	}
}

// EnqueueInbound 由dispatcher在收到WRTE后调用；必须先入队再回复OKAY
func (s *Socket) EnqueueInbound(payload []byte) {
	s.inbound <- payload
}

// Close 发起本地关闭：发送CLSE，状态迁移到HALF_CLOSED，但不立即释放资源
// 真正的释放要等待对端CLSE到达（DisposeFromPeerClose）
// 对HALF_CLOSED或CLOSED状态的socket调用是安全的空操作；OPENING状态下
// 同样迁移到HALF_CLOSED并发送CLSE(localID, 0)
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateHalfClosed {
		s.mu.Unlock()
		return nil
	}
	remoteID := s.remoteID
	s.state = StateHalfClosed
	s.mu.Unlock()

	log.Debugf("socket %d: initiating local close (remote=%d)", s.LocalID, remoteID)
	return s.out.SendClse(s.LocalID, remoteID)
}

// DisposeFromPeerClose 在对端CLSE到达时由dispatcher调用：释放资源，
// 拒绝挂起写入，结束可读端，状态迁移到CLOSED
func (s *Socket) DisposeFromPeerClose() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if pending != nil {
		pending <- ErrSocketClosed
		close(pending)
	}
	close(s.inbound)
}

// DisposeFromTeardown 在dispatcher因传输失败整体拆除时调用，语义与
// DisposeFromPeerClose相同，但不会尝试发送任何报文
func (s *Socket) DisposeFromTeardown() {
	s.DisposeFromPeerClose()
}
