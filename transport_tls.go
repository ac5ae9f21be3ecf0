package wslink

import (
	"context"
	"crypto/tls"
	"sync/atomic"
	"time"
)

// tlsTransport wraps the TCP layer with a TLS session. The session
// state belongs to this layer; the socket stays owned by the layer
// below, so Close sends close_notify here and delegates the socket
// release downward.
type tlsTransport struct {
	inner  *tcpTransport
	cfg    *tls.Config
	conn   *tls.Conn
	closed atomic.Bool
}

func newTLSTransport(inner *tcpTransport, cfg *tls.Config) *tlsTransport {
	return &tlsTransport{inner: inner, cfg: cfg}
}

func (t *tlsTransport) Open(ctx context.Context) error {
	if err := t.inner.Open(ctx); err != nil {
		return err
	}

	conn := tls.Client(t.inner.netConn(), t.cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		t.inner.Close()
		return &TransportError{Layer: LayerTLS, Op: "handshake", Err: err}
	}
	t.conn = conn
	return nil
}

func (t *tlsTransport) Read(p []byte) (int, error) {
	n, err := t.conn.Read(p)
	return n, translateIOErr(LayerTLS, "read", err)
}

func (t *tlsTransport) Write(p []byte) (int, error) {
	n, err := t.conn.Write(p)
	return n, translateIOErr(LayerTLS, "write", err)
}

func (t *tlsTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *tlsTransport) SetWriteDeadline(d time.Time) error {
	return t.conn.SetWriteDeadline(d)
}

// Close tears down the TLS session exactly once: a best-effort
// close_notify, then one close of the layer below. Redundant calls,
// including one racing the inner layer's own close, return nil.
func (t *tlsTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.conn != nil {
		_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = t.conn.CloseWrite()
	}
	return t.inner.Close()
}
