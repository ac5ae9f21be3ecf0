package wslink

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
)

type sendResult struct {
	n   int
	err error
}

// sendRequest is one outbound message for the duration of one send
// call, retry loop included. The payload is borrowed from the caller.
type sendRequest struct {
	opcode  uint8
	payload []byte
	ctx     context.Context
	resCh   chan sendResult
}

// Send writes one message of the given data opcode. The payload is
// segmented into frames of WriteBufferSize; only the final frame
// carries FIN. Send blocks up to the context deadline (WriteWait is
// applied when the context has none), never indefinitely.
//
// A returned FatalError means the connection was torn down; any other
// error leaves the connection usable.
func (c *Client) Send(ctx context.Context, opcode uint8, payload []byte) (int, error) {
	if !isData(opcode) {
		return 0, ErrInvalidOpcode
	}

	cn := c.current.Load()
	if cn == nil || cn.isClosed.Load() {
		return 0, ErrNotConnected
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.WriteWait)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	req := &sendRequest{
		opcode:  opcode,
		payload: payload,
		ctx:     ctx,
		resCh:   make(chan sendResult, 1),
	}

	select {
	case cn.outboundData <- req:
	case <-cn.done:
		return 0, fatal(ErrConnClosed)
	case <-ctx.Done():
		return 0, ErrSendTimeout
	}

	select {
	case res := <-req.resCh:
		return res.n, res.err
	case <-cn.done:
		return 0, fatal(ErrConnClosed)
	}
}

// SendText sends a text message.
func (c *Client) SendText(ctx context.Context, s string) (int, error) {
	return c.Send(ctx, OpcodeText, []byte(s))
}

// SendBinary sends a binary message.
func (c *Client) SendBinary(ctx context.Context, b []byte) (int, error) {
	return c.Send(ctx, OpcodeBinary, b)
}

// Ping sends a ping frame. Pings and pongs are also exchanged
// automatically; this is for callers that want an explicit probe.
func (c *Client) Ping(payload []byte) error {
	cn := c.current.Load()
	if cn == nil || cn.isClosed.Load() {
		return ErrNotConnected
	}
	if len(payload) > MaxControlFramePayload {
		return ErrInvalidControlFrame
	}
	return cn.writeControl(OpcodePing, payload)
}

// writerLoop serializes outbound data messages. It exits when the
// connection begins teardown; pending senders unblock on done.
func (cn *conn) writerLoop() {
	defer cn.wg.Done()
	for {
		select {
		case <-cn.done:
			return
		case req := <-cn.outboundData:
			cn.writeMessage(req)
		}
	}
}

// writeMessage segments one message into frames and writes them. The
// write mutex is taken per frame, so control frames and the close
// frame can interleave between the segments of a large message.
func (cn *conn) writeMessage(req *sendRequest) {
	segment := cn.c.opts.WriteBufferSize
	total := 0

	for {
		chunk := len(req.payload) - total
		if chunk > segment {
			chunk = segment
		}

		opcode := req.opcode
		if total > 0 {
			opcode = OpcodeContinuation
		}
		fin := total+chunk == len(req.payload)

		frame, err := encodeFrame(opcode, fin, req.payload[total:total+chunk])
		if err != nil {
			req.resCh <- sendResult{n: total, err: err}
			return
		}

		if err := cn.writeWithRetry(req.ctx, frame); err != nil {
			if !isWouldBlock(err) && !errors.Is(err, ErrSendTimeout) {
				// hard transport failure: the connection is gone, tear
				// it down here; redundant closes elsewhere are no-ops
				cn.abort(err)
				err = fatal(err)
			}
			req.resCh <- sendResult{n: total, err: err}
			return
		}
		total += chunk

		if fin {
			req.resCh <- sendResult{n: total}
			return
		}
	}
}

// writeWithRetry writes one frame, absorbing transient would-block
// conditions: a small number of exponentially backed-off attempts,
// then a slow fixed interval until the caller's deadline.
//
// The write mutex is held for the whole frame, backoff included: a
// deadline can expire mid-write, and once any byte of the frame is on
// the wire a control frame slipping in between retries would land in
// the middle of it.
func (cn *conn) writeWithRetry(ctx context.Context, frame []byte) error {
	o := cn.c.opts
	off := 0

	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()

	attempt := func() error {
		if cn.isClosed.Load() {
			return fatal(ErrConnClosed)
		}
		_ = cn.stack.SetWriteDeadline(time.Now().Add(o.WriteWait))
		n, err := cn.stack.Write(frame[off:])
		off += n
		if err == nil && off < len(frame) {
			return ErrWouldBlock
		}
		return err
	}

	err := retry.Do(attempt,
		retry.Attempts(uint(o.SendMaxRetries)),
		retry.Delay(o.SendRetryBase),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isWouldBlock),
		retry.Context(ctx),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrSendTimeout
	}
	if !isWouldBlock(err) {
		return err
	}

	// transient condition outlasted the fast retries: fall back to a
	// slow fixed interval until the deadline elapses
	for {
		select {
		case <-ctx.Done():
			return ErrSendTimeout
		case <-cn.done:
			return fatal(ErrConnClosed)
		case <-time.After(o.SendSlowRetry):
		}
		if err := attempt(); err == nil || !isWouldBlock(err) {
			return err
		}
	}
}

// writeControl writes one control frame directly, bypassing the data
// queue. Single attempt under the write deadline; control frames are
// small and either fit or the connection has bigger problems.
func (cn *conn) writeControl(opcode uint8, payload []byte) error {
	frame, err := encodeFrame(opcode, true, payload)
	if err != nil {
		return err
	}

	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	_ = cn.stack.SetWriteDeadline(time.Now().Add(cn.c.opts.WriteWait))
	_, err = cn.stack.Write(frame)
	return err
}
