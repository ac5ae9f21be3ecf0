package wslink

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// Transport is one layer of the connection stack. Layers wrap each
// other (TCP at the base, optional TLS above it, WebSocket on top) and
// each layer exclusively owns the layer below it.
//
// Read and Write return ErrWouldBlock when the layer temporarily
// cannot move bytes (deadline expiry); every other error is hard.
//
// Close is idempotent: the first call releases this layer's resources
// and closes the layer below exactly once, every later call is a no-op
// returning nil. Redundant closes from independent error paths are
// expected and must be harmless.
type Transport interface {
	Open(ctx context.Context) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// isWouldBlock reports whether err is the transient can't-move-bytes
// condition rather than a hard failure.
func isWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWouldBlock) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// translateIOErr maps deadline expiries to ErrWouldBlock and wraps hard
// failures with the originating layer.
func translateIOErr(layer Layer, op string, err error) error {
	if err == nil {
		return nil
	}
	if isWouldBlock(err) {
		return ErrWouldBlock
	}
	return &TransportError{Layer: layer, Op: op, Err: err}
}
