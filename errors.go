package wslink

import (
	"errors"
	"fmt"
)

// FatalError marks an error that ended the connection. Any API that
// returns one guarantees the transport has been (or is being) torn down.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func IsFatalErr(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

func fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsFatalErr(err) {
		return err
	}
	return &FatalError{Err: err}
}

// Layer identifies which transport layer an error originated from.
type Layer string

const (
	LayerTCP       Layer = "tcp"
	LayerTLS       Layer = "tls"
	LayerWebSocket Layer = "websocket"
)

// TransportError wraps an I/O failure with the layer it came from.
type TransportError struct {
	Layer Layer
	Op    string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Layer, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CloseError carries the status code and reason of a close frame.
type CloseError struct {
	Code   uint16
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed with code %d", e.Code)
	}
	return fmt.Sprintf("websocket closed with code %d: %s", e.Code, e.Reason)
}

var (
	// ErrWouldBlock reports that the transport temporarily cannot move
	// bytes. Callers retry; it is never fatal by itself.
	ErrWouldBlock = errors.New("transport would block")

	ErrNeedMoreData = errors.New("incomplete frame header")

	ErrInvalidOpcode          = errors.New("invalid opcode")
	ErrUnnegotiatedRsvBits    = errors.New("non-zero reserved bits set without negotiated extension")
	ErrMaskedServerFrame      = errors.New("received masked frame, frames from the server must not be masked")
	ErrNonMinimalLength       = errors.New("payload length not encoded in its minimal form")
	ErrInvalidLength          = errors.New("payload length out of range")
	ErrInvalidControlFrame    = errors.New("invalid control frame")
	ErrUnexpectedContinuation = errors.New("continuation frame without a message in progress")
	ErrInvalidClosePayload    = errors.New("invalid close frame payload")
	ErrInvalidCloseCode       = errors.New("invalid close code")

	ErrInvalidUTF8 = errors.New("text message payload is not valid UTF-8")

	ErrMessageTooLarge  = errors.New("message exceeds the configured maximum size")
	ErrChunkOutOfBounds = errors.New("delivery chunk exceeds the declared message length")

	ErrConnClosed     = errors.New("connection is closed")
	ErrNotConnected   = errors.New("client is not connected")
	ErrAlreadyStarted = errors.New("client already started")
	ErrSendTimeout    = errors.New("send deadline elapsed")
	ErrPongTimeout    = errors.New("no pong received within the configured wait")

	ErrUnsupportedScheme  = errors.New("endpoint scheme must be ws or wss")
	ErrMissingHost        = errors.New("endpoint is missing a host")
	ErrInvalidBufferSize  = errors.New("invalid buffer size configuration")
	ErrInvalidTLSMaterial = errors.New("invalid TLS certificate material")

	ErrHandshakeBadStatus = errors.New("handshake response status is not 101")
	ErrHandshakeBadAccept = errors.New("invalid Sec-WebSocket-Accept header")
	ErrHandshakeBadHeader = errors.New("invalid handshake response header")
)

// protocolError tags codec-level violations. Every protocolError is fatal
// and drives a close handshake with status 1002.
type protocolError struct {
	err error
}

func (e *protocolError) Error() string {
	return e.err.Error()
}

func (e *protocolError) Unwrap() error {
	return e.err
}

func protoErr(err error) error {
	if err == nil {
		return nil
	}
	return &protocolError{err: err}
}

func isProtocolErr(err error) bool {
	var pe *protocolError
	return errors.As(err, &pe)
}
