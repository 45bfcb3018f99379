package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goadb/hostbridge/pkg/adb/socket"
	"github.com/goadb/hostbridge/pkg/adb/transport"
	"github.com/goadb/hostbridge/pkg/adb/wire"
)

// devicePeer wraps the "device" end of an in-memory transport pair and lets
// tests act as the peer: read what the dispatcher sent, and inject replies.
type devicePeer struct {
	t *transport.MemoryTransport
}

func (p *devicePeer) expect(t *testing.T, cmd wire.Command) *wire.Packet {
	t.Helper()
	pkt, err := p.t.Recv()
	if err != nil {
		t.Fatalf("expected %v, recv error: %v", cmd, err)
	}
	if pkt.Command != cmd {
		t.Fatalf("expected %v, got %v", cmd, pkt.Command)
	}
	return pkt
}

func (p *devicePeer) send(pkt *wire.Packet) {
	p.t.Send(pkt)
}

func newTestDispatcher(opts ...Option) (*Dispatcher, *devicePeer) {
	hostSide, deviceSide := transport.NewMemoryPair()
	d := New(hostSide, 4, false, opts...)
	return d, &devicePeer{t: deviceSide}
}

func TestOpenWriteCloseFullSequence(t *testing.T) {
	d, peer := newTestDispatcher()

	openDone := make(chan struct {
		sock *socket.Socket
		err  error
	}, 1)
	go func() {
		s, err := d.Open(context.Background(), "shell:echo hi")
		openDone <- struct {
			sock *socket.Socket
			err  error
		}{s, err}
	}()

	openPkt := peer.expect(t, wire.CmdOPEN)
	if openPkt.Arg1 != 0 {
		t.Fatalf("expected arg1=0 on OPEN, got %d", openPkt.Arg1)
	}
	localID := openPkt.Arg0
	peer.send(&wire.Packet{Command: wire.CmdOKAY, Arg0: 500, Arg1: localID})

	res := <-openDone
	if res.err != nil {
		t.Fatalf("Open failed: %v", res.err)
	}
	sock := res.sock
	if sock.State() != socket.StateEstablished {
		t.Fatalf("expected ESTABLISHED, got %v", sock.State())
	}

	writeErr := make(chan error, 1)
	go func() { writeErr <- sock.Write(context.Background(), []byte("hiya")) }()

	wrte := peer.expect(t, wire.CmdWRTE)
	if string(wrte.Payload) != "hiya" || wrte.Arg0 != localID || wrte.Arg1 != 500 {
		t.Fatalf("unexpected WRTE: %+v", wrte)
	}
	peer.send(&wire.Packet{Command: wire.CmdOKAY, Arg0: 500, Arg1: localID})
	if err := <-writeErr; err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := sock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	clse := peer.expect(t, wire.CmdCLSE)
	if clse.Arg0 != localID || clse.Arg1 != 500 {
		t.Fatalf("unexpected CLSE: %+v", clse)
	}
	peer.send(&wire.Packet{Command: wire.CmdCLSE, Arg0: 500, Arg1: localID})

	time.Sleep(10 * time.Millisecond)
	if sock.State() != socket.StateClosed {
		t.Fatalf("expected CLOSED, got %v", sock.State())
	}
}

func TestOpenRejected(t *testing.T) {
	d, peer := newTestDispatcher()

	errc := make(chan error, 1)
	go func() {
		_, err := d.Open(context.Background(), "no-such-service:")
		errc <- err
	}()

	openPkt := peer.expect(t, wire.CmdOPEN)
	peer.send(&wire.Packet{Command: wire.CmdCLSE, Arg0: 0, Arg1: openPkt.Arg0})

	err := <-errc
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestFragmentedWriteRespectsMaxPayload(t *testing.T) {
	d, peer := newTestDispatcher() // maxPayload=4 in newTestDispatcher

	openDone := make(chan *socket.Socket, 1)
	go func() {
		s, _ := d.Open(context.Background(), "sync:")
		openDone <- s
	}()
	openPkt := peer.expect(t, wire.CmdOPEN)
	localID := openPkt.Arg0
	peer.send(&wire.Packet{Command: wire.CmdOKAY, Arg0: 9, Arg1: localID})
	sock := <-openDone

	writeErr := make(chan error, 1)
	go func() { writeErr <- sock.Write(context.Background(), []byte("aaaabbbbcc")) }() // 4,4,2

	sizes := []int{}
	for i := 0; i < 3; i++ {
		wrte := peer.expect(t, wire.CmdWRTE)
		sizes = append(sizes, len(wrte.Payload))
		peer.send(&wire.Packet{Command: wire.CmdOKAY, Arg0: 9, Arg1: localID})
	}
	if err := <-writeErr; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Fatalf("unexpected chunk sizes: %v", sizes)
	}
}

func TestTransportFailureFailsPendingSocket(t *testing.T) {
	d, peer := newTestDispatcher()

	openDone := make(chan *socket.Socket, 1)
	go func() {
		s, _ := d.Open(context.Background(), "shell:")
		openDone <- s
	}()
	openPkt := peer.expect(t, wire.CmdOPEN)
	peer.send(&wire.Packet{Command: wire.CmdOKAY, Arg0: 1, Arg1: openPkt.Arg0})
	sock := <-openDone

	writeErr := make(chan error, 1)
	go func() { writeErr <- sock.Write(context.Background(), []byte("x")) }()

	peer.expect(t, wire.CmdWRTE)
	// simulate transport failure instead of acking
	d.Close()

	select {
	case err := <-writeErr:
		if !errors.Is(err, socket.ErrSocketClosed) {
			t.Fatalf("expected ErrSocketClosed after teardown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for teardown to fail pending write")
	}

	<-d.Done()
	if !errors.Is(d.Err(), ErrTransportFailed) {
		t.Fatalf("expected ErrTransportFailed, got %v", d.Err())
	}
}

type acceptAllHandler struct {
	opened chan *socket.Socket
}

func (h *acceptAllHandler) HandleIncoming(serviceString string, remotePeerID uint32) bool {
	return true
}
func (h *acceptAllHandler) OnOpened(sock *socket.Socket) { h.opened <- sock }

func TestReverseOpenAccepted(t *testing.T) {
	handler := &acceptAllHandler{opened: make(chan *socket.Socket, 1)}
	d, peer := newTestDispatcher(WithIncomingHandler(handler))

	peer.send(&wire.Packet{Command: wire.CmdOPEN, Arg0: 77, Arg1: 0, Payload: append([]byte("tcp:1234"), 0)})

	okay := peer.expect(t, wire.CmdOKAY)
	if okay.Arg1 != 77 {
		t.Fatalf("expected OKAY addressed to peer id 77, got %d", okay.Arg1)
	}

	select {
	case sock := <-handler.opened:
		if sock.ServiceString != "tcp:1234" {
			t.Fatalf("unexpected service string: %q", sock.ServiceString)
		}
	case <-time.After(time.Second):
		t.Fatal("handler.OnOpened was never called")
	}
	_ = d
}

func TestReverseOpenWithoutHandlerIsRejected(t *testing.T) {
	d, peer := newTestDispatcher()

	peer.send(&wire.Packet{Command: wire.CmdOPEN, Arg0: 77, Arg1: 0, Payload: append([]byte("tcp:1234"), 0)})

	clse := peer.expect(t, wire.CmdCLSE)
	if clse.Arg1 != 77 {
		t.Fatalf("expected CLSE addressed to peer id 77, got %d", clse.Arg1)
	}
	_ = d
}
