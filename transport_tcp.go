package wslink

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// tcpTransport is the base layer. It owns the net.Conn exclusively; no
// other layer touches the socket directly.
type tcpTransport struct {
	addr        string
	dialTimeout time.Duration
	conn        net.Conn
	closed      atomic.Bool
}

func newTCPTransport(addr string, dialTimeout time.Duration) *tcpTransport {
	return &tcpTransport{addr: addr, dialTimeout: dialTimeout}
}

func (t *tcpTransport) Open(ctx context.Context) error {
	d := net.Dialer{Timeout: t.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return &TransportError{Layer: LayerTCP, Op: "dial", Err: err}
	}
	t.conn = conn
	return nil
}

// netConn exposes the socket to the TLS layer, which needs a net.Conn
// to run the record protocol over. Ownership stays here.
func (t *tcpTransport) netConn() net.Conn {
	return t.conn
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	n, err := t.conn.Read(p)
	return n, translateIOErr(LayerTCP, "read", err)
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	n, err := t.conn.Write(p)
	return n, translateIOErr(LayerTCP, "write", err)
}

func (t *tcpTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *tcpTransport) SetWriteDeadline(d time.Time) error {
	return t.conn.SetWriteDeadline(d)
}

// Close releases the socket exactly once. It marks the layer closed
// even if the release itself fails.
func (t *tcpTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	return nil
}
