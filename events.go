package wslink

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// EventType discriminates the tagged union delivered on the client's
// event channel.
type EventType int

const (
	// EventBegin is emitted once per connection cycle, before dialing.
	EventBegin EventType = iota
	// EventConnected is emitted after a successful handshake.
	EventConnected
	// EventData carries one completed, reassembled message.
	EventData
	// EventError reports a fatal failure with its classified cause.
	EventError
	// EventDisconnected is emitted exactly once per connection cycle
	// after the transport stack is torn down.
	EventDisconnected
	// EventFinished is the last event; the channel closes after it.
	EventFinished
)

func (t EventType) String() string {
	switch t {
	case EventBegin:
		return "begin"
	case EventConnected:
		return "connected"
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	case EventFinished:
		return "finished"
	}
	return "unknown"
}

// ErrorKind classifies the originating layer of a fatal failure.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTCP
	KindTLS
	KindHandshake
	KindProtocol
	KindSizeLimit
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindTLS:
		return "tls"
	case KindHandshake:
		return "handshake"
	case KindProtocol:
		return "protocol"
	case KindSizeLimit:
		return "size-limit"
	case KindTimeout:
		return "timeout"
	}
	return "none"
}

// DataEvent is one completed message. TotalLen and Offset mirror the
// chunk-shaped delivery interface; for a reassembled message Offset is
// always 0 and TotalLen equals len(Payload).
type DataEvent struct {
	Opcode   uint8
	Payload  []byte
	Fin      bool
	TotalLen int
	Offset   int
}

// ErrorEvent carries the classified cause of a fatal failure.
type ErrorEvent struct {
	Kind            ErrorKind
	CloseCode       uint16
	HandshakeStatus int
	Err             error
}

// Event is the tagged union the consumer receives. Exactly one of Data
// and Err is set, depending on Type.
type Event struct {
	Type EventType
	Data *DataEvent
	Err  *ErrorEvent
}

// classifyError maps an internal failure to the consumer-facing error
// event, identifying the layer it originated from.
func classifyError(err error) *ErrorEvent {
	ev := &ErrorEvent{Kind: KindProtocol, Err: err}

	var he *HandshakeError
	if errors.As(err, &he) {
		ev.Kind = KindHandshake
		ev.HandshakeStatus = he.StatusCode
		return ev
	}
	var te *TransportError
	if errors.As(err, &te) {
		switch te.Layer {
		case LayerTLS:
			ev.Kind = KindTLS
		default:
			ev.Kind = KindTCP
		}
		return ev
	}
	var ce *CloseError
	if errors.As(err, &ce) {
		ev.CloseCode = ce.Code
		return ev
	}
	if errors.Is(err, ErrMessageTooLarge) {
		ev.Kind = KindSizeLimit
	}
	if errors.Is(err, ErrPongTimeout) || errors.Is(err, ErrSendTimeout) {
		ev.Kind = KindTimeout
	}
	return ev
}

// eventQueue decouples the I/O task from the consumer: the task pushes
// without ever blocking, a dispatcher goroutine drains the FIFO into
// the consumer channel in order.
type eventQueue struct {
	mu     sync.Mutex
	fifo   *queue.Queue
	wake   chan struct{}
	out    chan Event
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		fifo: queue.New(),
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
	go q.dispatch()
	return q
}

// events is the consumer side. It closes after EventFinished.
func (q *eventQueue) events() <-chan Event {
	return q.out
}

// push enqueues one event. Pushes after close are dropped.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.fifo.Add(ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close stops the queue; the dispatcher drains what is already queued
// and then closes the consumer channel.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) dispatch() {
	for {
		q.mu.Lock()
		if q.fifo.Length() == 0 {
			if q.closed {
				q.mu.Unlock()
				close(q.out)
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		ev := q.fifo.Remove().(Event)
		q.mu.Unlock()

		q.out <- ev
	}
}
