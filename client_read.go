package wslink

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// conn is one connection cycle. It is created after a successful
// handshake and dies with the transport stack. The read loop runs on
// the client's background task; a writer goroutine serializes outbound
// data messages; control frames and the close frame are written
// directly under writeMu so they never queue behind data.
type conn struct {
	c     *Client
	stack *wsTransport
	accum *accumulator

	// closed when the connection begins teardown. Pending sends and
	// retry loops unblock on it.
	done      chan struct{}
	closeOnce sync.Once
	isClosed  atomic.Bool

	outboundData chan *sendRequest
	writeMu      sync.Mutex
	wg           sync.WaitGroup

	readBuf []byte
	pending []byte

	// current data frame being consumed
	frameRemaining int64
	frameFin       bool
	frameOffset    int

	lastPing     time.Time
	awaitingPong bool
}

func newConn(c *Client, stack *wsTransport) *conn {
	c.accum.reset()
	return &conn{
		c:            c,
		stack:        stack,
		accum:        c.accum,
		done:         make(chan struct{}),
		outboundData: make(chan *sendRequest),
		readBuf:      make([]byte, c.opts.ReadBufferSize),
		lastPing:     time.Now(),
	}
}

// readLoop drives the connection until teardown: it polls the stack
// with a bounded deadline, parses frames, answers control frames and
// feeds data frames through the accumulator. All state transitions
// happen here or in shutdown.
func (cn *conn) readLoop() {
	// the read loop owns the accumulator and the parse cursor; they
	// are cleared here, not in teardown, so no other goroutine ever
	// touches them
	defer func() {
		cn.accum.reset()
		cn.pending = nil
		cn.frameRemaining = 0
	}()

	for {
		if cn.isClosed.Load() {
			return
		}

		_ = cn.stack.SetReadDeadline(time.Now().Add(cn.c.opts.PollInterval))
		n, err := cn.stack.Read(cn.readBuf)
		if n > 0 {
			cn.pending = append(cn.pending, cn.readBuf[:n]...)
			if err := cn.process(); err != nil {
				cn.fail(err)
				return
			}
		}
		if err != nil {
			if isWouldBlock(err) {
				if stop := cn.idle(); stop {
					return
				}
				continue
			}
			cn.fail(err)
			return
		}
	}
}

// idle runs at every poll wakeup: stop handling and keepalive. It
// reports whether the loop should exit.
func (cn *conn) idle() bool {
	if cn.c.stopRequested() {
		if cn.c.aborted.Load() {
			cn.abort(nil)
		} else {
			cn.shutdown(CloseNormalClosure, "", nil)
		}
		return true
	}

	o := cn.c.opts
	if o.PongWait > 0 && cn.awaitingPong && time.Since(cn.lastPing) > o.PongWait {
		cn.fail(ErrPongTimeout)
		return true
	}
	if o.PingInterval > 0 && time.Since(cn.lastPing) >= o.PingInterval {
		cn.lastPing = time.Now()
		cn.awaitingPong = true
		if err := cn.writeControl(OpcodePing, nil); err != nil && !isWouldBlock(err) {
			cn.fail(err)
			return true
		}
	}
	return false
}

// process consumes as much of the pending byte cursor as possible:
// whole control frames, data frame headers, and payload chunks of the
// data frame currently being consumed.
func (cn *conn) process() error {
	for {
		// mid-frame: hand the next chunk to the accumulator
		if cn.frameRemaining > 0 {
			if len(cn.pending) == 0 {
				return nil
			}
			chunk := cn.pending
			if int64(len(chunk)) > cn.frameRemaining {
				chunk = chunk[:cn.frameRemaining]
			}
			if err := cn.accum.writeAt(cn.frameOffset, chunk); err != nil {
				return err
			}
			cn.frameOffset += len(chunk)
			cn.frameRemaining -= int64(len(chunk))
			cn.pending = cn.pending[len(chunk):]
			if cn.frameRemaining == 0 {
				if err := cn.finishFrame(); err != nil {
					return err
				}
			}
			continue
		}

		hdr, hn, err := parseFrameHeader(cn.pending)
		if err == ErrNeedMoreData {
			return nil
		}
		if err != nil {
			return err
		}

		if isControl(hdr.OPCODE) {
			// control payloads are <=125 bytes, wait for the whole frame
			if int64(len(cn.pending)) < int64(hn)+hdr.PayloadLength {
				return nil
			}
			payload := cn.pending[hn : int64(hn)+hdr.PayloadLength]
			cn.pending = cn.pending[int64(hn)+hdr.PayloadLength:]
			if err := cn.handleControl(hdr.OPCODE, payload); err != nil {
				return err
			}
			continue
		}

		cn.pending = cn.pending[hn:]
		if err := cn.beginFrame(hdr); err != nil {
			return err
		}
	}
}

// beginFrame applies one data frame header to the accumulator and arms
// chunk consumption of its payload.
func (cn *conn) beginFrame(hdr frameHeader) error {
	switch {
	case isData(hdr.OPCODE):
		if cn.accum.active {
			// A fresh message while one is mid-reassembly preempts it:
			// drop the partial message and start over.
			cn.c.log.Warn("new message preempts partial reassembly",
				slog.Int("discarded", cn.accum.received))
			cn.accum.reset()
		}
		if err := cn.accum.prepare(hdr.OPCODE, hdr.PayloadLength); err != nil {
			return err
		}
	case hdr.OPCODE == OpcodeContinuation:
		if err := cn.accum.extend(hdr.PayloadLength); err != nil {
			return err
		}
	}

	cn.frameRemaining = hdr.PayloadLength
	cn.frameFin = hdr.FIN
	cn.frameOffset = cn.accum.received

	if cn.frameRemaining == 0 {
		return cn.finishFrame()
	}
	return nil
}

// finishFrame runs when the current frame's payload is fully consumed.
// A FIN frame with every expected byte received completes the message.
func (cn *conn) finishFrame() error {
	if cn.frameFin && cn.accum.complete() {
		opcode, payload := cn.accum.take()
		if opcode == OpcodeText && cn.c.opts.ValidateUTF8 && !utf8.Valid(payload) {
			return ErrInvalidUTF8
		}
		cn.emitData(opcode, payload)
	}
	return nil
}

func (cn *conn) emitData(opcode uint8, payload []byte) {
	if cn.isClosed.Load() {
		return
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	cn.c.queue.push(Event{Type: EventData, Data: &DataEvent{
		Opcode:   opcode,
		Payload:  out,
		Fin:      true,
		TotalLen: len(out),
	}})
}

// handleControl answers control frames without involving the consumer
// and without disturbing an in-flight accumulation.
func (cn *conn) handleControl(opcode uint8, payload []byte) error {
	switch opcode {
	case OpcodePing:
		// answer with an identical payload in the same read cycle
		p := make([]byte, len(payload))
		copy(p, payload)
		return cn.writeControl(OpcodePong, p)
	case OpcodePong:
		cn.awaitingPong = false
		return nil
	case OpcodeClose:
		code, reason, err := parseClosePayload(payload)
		if err != nil {
			return err
		}
		// a clean 1000 is not an error, anything else is surfaced
		var cause error
		if code != CloseNormalClosure {
			cause = &CloseError{Code: code, Reason: reason}
		}
		cn.shutdown(code, reason, cause)
		return fatal(ErrConnClosed)
	}
	return nil
}

// fail is the single failure funnel: classify, close 1002 when the
// peer broke protocol, and tear down. Calling it on an already-closed
// connection is harmless.
func (cn *conn) fail(err error) {
	switch {
	case errors.Is(err, ErrConnClosed):
		// teardown already ran
	case isProtocolErr(err) || errors.Is(err, ErrUnexpectedContinuation):
		cn.shutdown(CloseProtocolError, err.Error(), err)
	case errors.Is(err, ErrMessageTooLarge) || errors.Is(err, ErrChunkOutOfBounds):
		cn.shutdown(CloseMessageTooBig, err.Error(), err)
	case errors.Is(err, ErrInvalidUTF8):
		cn.shutdown(CloseInvalidFramePayloadData, err.Error(), err)
	default:
		cn.abort(err)
	}
}

// shutdown performs the graceful teardown exactly once: close frame
// out (best effort), transport stack closed, and the Error and
// Disconnected events emitted. Every later call, from any goroutine,
// is a no-op.
func (cn *conn) shutdown(code uint16, reason string, cause error) {
	cn.teardown(cause, func() {
		_ = cn.writeControl(OpcodeClose, encodeClosePayload(code, reason))
	})
}

// abort is shutdown without the close handshake: the transport is
// closed as-is. Used for transport-level failures and Abort.
func (cn *conn) abort(cause error) {
	cn.teardown(cause, nil)
}

func (cn *conn) teardown(cause error, closeFrame func()) {
	cn.closeOnce.Do(func() {
		if cause != nil {
			cn.c.state.Store(int32(StateError))
		} else {
			cn.c.state.Store(int32(StateClosing))
		}

		close(cn.done)
		if closeFrame != nil {
			closeFrame()
		}

		// Either branch above may already have closed parts of the
		// stack; per-layer idempotency makes this unconditional close
		// safe no matter how many paths got here first.
		cn.stack.markCloseSent()
		_ = cn.stack.Close()

		cn.isClosed.Store(true)

		if cause != nil {
			cn.c.queue.push(Event{Type: EventError, Err: classifyError(cause)})
		}
		cn.c.queue.push(Event{Type: EventDisconnected})
		cn.c.state.Store(int32(StateClosed))
	})
}
