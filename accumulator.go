package wslink

// accumulator joins the fragments of one logical message into a single
// payload. Fragmentation shows up at two levels and both funnel through
// here: WebSocket continuation frames extend the expected length, and
// chunked delivery of one frame's payload lands at its offset.
//
// The buffer is sized once, at configuration time, and reused across
// messages within the connection. At most one accumulation is in
// flight; the connection clears it on completion, on any error, and at
// every lifecycle boundary.
//
// Invariant: received <= expected <= cap(buf).
type accumulator struct {
	buf      []byte
	expected int
	received int
	opcode   uint8
	active   bool
}

func newAccumulator(capacity int) *accumulator {
	return &accumulator{buf: make([]byte, capacity)}
}

// prepare starts accumulating a new message with its originating
// opcode and the first frame's declared length. An oversized declared
// length is rejected before any byte is copied and leaves the
// accumulator inactive. The caller decides what preparing over an
// active accumulation means (the engine preempts: discard the partial
// message and restart).
func (a *accumulator) prepare(opcode uint8, total int64) error {
	if total < 0 || total > int64(len(a.buf)) {
		a.reset()
		return ErrMessageTooLarge
	}
	a.expected = int(total)
	a.received = 0
	a.opcode = opcode
	a.active = true
	return nil
}

// extend declares n more expected payload bytes (one more frame of the
// message). It rejects oversized messages before any byte is copied.
func (a *accumulator) extend(n int64) error {
	if !a.active {
		return ErrUnexpectedContinuation
	}
	if n < 0 || int64(a.expected)+n > int64(len(a.buf)) {
		return ErrMessageTooLarge
	}
	a.expected += int(n)
	return nil
}

// writeAt copies one delivery chunk at its offset within the message.
// A chunk that runs past the declared expected length signals a
// malformed or adversarial delivery and is rejected without copying.
func (a *accumulator) writeAt(offset int, p []byte) error {
	if !a.active {
		return ErrUnexpectedContinuation
	}
	if offset < 0 || offset+len(p) > a.expected {
		return ErrChunkOutOfBounds
	}
	copy(a.buf[offset:], p)
	if offset+len(p) > a.received {
		a.received = offset + len(p)
	}
	return nil
}

// complete reports whether every expected byte has arrived.
func (a *accumulator) complete() bool {
	return a.active && a.received == a.expected
}

// take hands out the finished message and deactivates the accumulator.
// The returned slice aliases the internal buffer and is only valid
// until the next prepare.
func (a *accumulator) take() (uint8, []byte) {
	opcode := a.opcode
	payload := a.buf[:a.received]
	a.reset()
	return opcode, payload
}

// reset clears all bookkeeping. The buffer is kept for reuse.
func (a *accumulator) reset() {
	a.expected = 0
	a.received = 0
	a.opcode = 0
	a.active = false
}
