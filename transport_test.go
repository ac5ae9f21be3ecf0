package wslink

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"
)

// fakeTransport is a scriptable inner layer that counts closes.
type fakeTransport struct {
	mu         sync.Mutex
	readQueue  [][]byte
	written    []byte
	readErrs   []error
	writeErrs  []error
	partials   []int // per-call byte limits, each short write returns a deadline error
	closeCount int
}

func (f *fakeTransport) Open(ctx context.Context) error { return nil }

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		return 0, err
	}
	if len(f.readQueue) == 0 {
		return 0, ErrWouldBlock
	}
	n := copy(p, f.readQueue[0])
	if n == len(f.readQueue[0]) {
		f.readQueue = f.readQueue[1:]
	} else {
		f.readQueue[0] = f.readQueue[0][n:]
	}
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(f.partials) > 0 {
		limit := f.partials[0]
		f.partials = f.partials[1:]
		if limit < len(p) {
			f.written = append(f.written, p[:limit]...)
			return limit, os.ErrDeadlineExceeded
		}
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeTransport) wire() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written...)
}

func (f *fakeTransport) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeTransport) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	return nil
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

func newTestWSTransport(inner Transport) *wsTransport {
	return &wsTransport{
		inner:     inner,
		closeWait: time.Second,
	}
}

func TestTCPTransportCloseIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := newTCPTransport("irrelevant:0", time.Second)
	tr.conn = client

	for i := 0; i < 3; i++ {
		if err := tr.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if _, err := client.Write([]byte("x")); err == nil {
		t.Fatal("socket should be released after the first close")
	}
}

func TestTLSTransportCloseClosesInnerOnce(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tcp := newTCPTransport("irrelevant:0", time.Second)
	tcp.conn = client
	tl := newTLSTransport(tcp, nil)

	for i := 0; i < 3; i++ {
		if err := tl.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if !tcp.closed.Load() {
		t.Fatal("inner layer not closed")
	}
	// the base layer's own close is still a no-op afterwards
	if err := tcp.Close(); err != nil {
		t.Fatalf("tcp close after tls close: %v", err)
	}
}

func TestWSTransportCloseIdempotent(t *testing.T) {
	inner := &fakeTransport{}
	ws := newTestWSTransport(inner)

	for i := 0; i < 5; i++ {
		if err := ws.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if got := inner.closes(); got != 1 {
		t.Fatalf("inner closed %d times, want 1", got)
	}

	// exactly one close frame went out
	frames := 0
	inner.mu.Lock()
	raw := inner.written
	inner.mu.Unlock()
	for len(raw) > 0 {
		if raw[0]&0x0F != OpcodeClose {
			t.Fatalf("unexpected opcode %#x in close output", raw[0]&0x0F)
		}
		payloadLen := int(raw[1] & 0x7F)
		raw = raw[2+4+payloadLen:]
		frames++
	}
	if frames != 1 {
		t.Fatalf("wrote %d close frames, want 1", frames)
	}
}

func TestWSTransportCloseSuppressedAfterMarkCloseSent(t *testing.T) {
	inner := &fakeTransport{}
	ws := newTestWSTransport(inner)

	ws.markCloseSent()
	if err := ws.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	inner.mu.Lock()
	written := len(inner.written)
	inner.mu.Unlock()
	if written != 0 {
		t.Fatalf("wrote %d bytes, want none: the close frame was already sent", written)
	}
	if got := inner.closes(); got != 1 {
		t.Fatalf("inner closed %d times, want 1", got)
	}
}

func TestWSTransportConcurrentClose(t *testing.T) {
	inner := &fakeTransport{}
	ws := newTestWSTransport(inner)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := inner.closes(); got != 1 {
		t.Fatalf("inner closed %d times, want 1", got)
	}
}

func TestStackedCloseAnyOrder(t *testing.T) {
	// closing every layer, repeatedly and in the wrong order, still
	// releases each layer exactly once
	client, server := net.Pipe()
	defer server.Close()

	tcp := newTCPTransport("irrelevant:0", time.Second)
	tcp.conn = client
	tl := newTLSTransport(tcp, nil)
	ws := newTestWSTransport(tl)

	if err := tcp.Close(); err != nil {
		t.Fatalf("tcp close: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("ws close: %v", err)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("tls close: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("second ws close: %v", err)
	}

	if !tcp.closed.Load() || !tl.closed.Load() || !ws.closed.Load() {
		t.Fatal("every layer should be marked closed")
	}
}

func TestIsWouldBlock(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrWouldBlock, true},
		{"os deadline", os.ErrDeadlineExceeded, true},
		{"wrapped deadline", &TransportError{Layer: LayerTCP, Op: "read", Err: os.ErrDeadlineExceeded}, true},
		{"hard error", errors.New("broken pipe"), false},
		{"conn closed", ErrConnClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWouldBlock(tt.err); got != tt.want {
				t.Errorf("isWouldBlock(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTranslateIOErr(t *testing.T) {
	if translateIOErr(LayerTCP, "read", nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if err := translateIOErr(LayerTCP, "read", os.ErrDeadlineExceeded); err != ErrWouldBlock {
		t.Fatalf("deadline expiry = %v, want ErrWouldBlock", err)
	}

	hard := errors.New("connection reset")
	err := translateIOErr(LayerTLS, "write", hard)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("hard error = %T, want *TransportError", err)
	}
	if te.Layer != LayerTLS || te.Op != "write" || !errors.Is(err, hard) {
		t.Fatalf("wrapped badly: %+v", te)
	}
}
