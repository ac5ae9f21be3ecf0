package wslink

import (
	"bufio"
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// wsTransport is the top layer of the stack. It owns the opening
// handshake and, on teardown, a best-effort close frame before the
// layer below is released.
//
// Reads go through a buffered reader so that bytes the server sends
// immediately after the 101 response are not lost between handshake
// and frame parsing.
type wsTransport struct {
	inner        Transport
	ep           endpoint
	subprotocols []string
	headers      http.Header

	br          *bufio.Reader
	readBufSize int
	result      handshakeResult
	closed      atomic.Bool
	closeSent   atomic.Bool
	closeWait   time.Duration
	handshakeTO time.Duration
}

func newTransportStack(o *Options, ep endpoint) *wsTransport {
	var inner Transport
	tcp := newTCPTransport(ep.addr(), o.NetworkTimeout)
	if ep.secure {
		inner = newTLSTransport(tcp, o.tlsConfig(ep))
	} else {
		inner = tcp
	}

	return &wsTransport{
		inner:        inner,
		ep:           ep,
		subprotocols: o.Subprotocols,
		headers:      o.RequestHeaders,
		readBufSize:  o.ReadBufferSize,
		closeWait:    o.WriteWait,
		handshakeTO:  o.NetworkTimeout,
	}
}

// Open opens the layers below and performs the upgrade handshake. On
// handshake failure the stack below is closed before returning.
func (t *wsTransport) Open(ctx context.Context) error {
	if err := t.inner.Open(ctx); err != nil {
		return err
	}

	deadline := time.Now().Add(t.handshakeTO)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.inner.SetReadDeadline(deadline)
	_ = t.inner.SetWriteDeadline(deadline)

	t.br = bufio.NewReaderSize(t.inner, t.readBufSize)
	res, err := performHandshake(t.inner, t.br, t.ep, t.subprotocols, t.headers)
	if err != nil {
		t.result = res
		t.inner.Close()
		return err
	}
	t.result = res

	_ = t.inner.SetReadDeadline(time.Time{})
	_ = t.inner.SetWriteDeadline(time.Time{})
	return nil
}

// Subprotocol returns the subprotocol the server selected, if any.
func (t *wsTransport) Subprotocol() string {
	return t.result.Subprotocol
}

func (t *wsTransport) Read(p []byte) (int, error) {
	return t.br.Read(p)
}

func (t *wsTransport) Write(p []byte) (int, error) {
	return t.inner.Write(p)
}

func (t *wsTransport) SetReadDeadline(d time.Time) error {
	return t.inner.SetReadDeadline(d)
}

func (t *wsTransport) SetWriteDeadline(d time.Time) error {
	return t.inner.SetWriteDeadline(d)
}

// markCloseSent records that a close frame already went out through the
// normal close handshake, so Close must not emit a second one.
func (t *wsTransport) markCloseSent() {
	t.closeSent.Store(true)
}

// Close tears the WebSocket layer down exactly once: a best-effort
// close frame unless one was already sent, then one close of the layer
// below. The close below happens both here and, on some error paths,
// from the connection's own teardown; every layer's guard makes that
// redundancy harmless.
func (t *wsTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.closeSent.CompareAndSwap(false, true) {
		if b, err := encodeFrame(OpcodeClose, true, encodeClosePayload(CloseGoingAway, "")); err == nil {
			_ = t.inner.SetWriteDeadline(time.Now().Add(t.closeWait))
			_, _ = t.inner.Write(b)
		}
	}
	return t.inner.Close()
}
