package wslink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ConnectionState tracks where a client is in its lifecycle.
type ConnectionState int32

const (
	StateInit ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Client is a WebSocket client connection handle. All exported methods
// are safe for concurrent use; the connection itself is driven by one
// background goroutine that owns the transport stack, the connection
// state and the accumulator exclusively.
type Client struct {
	opts    *Options
	ep      endpoint
	log     *slog.Logger
	limiter *rate.Limiter

	state   atomic.Int32
	queue   *eventQueue
	accum   *accumulator
	current atomic.Pointer[conn]

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	aborted  atomic.Bool
	wg       sync.WaitGroup
}

// NewClient validates opts and builds a client. Nothing is dialed
// until Start. Configuration is validated here and never again.
func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.WithDefault()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ep, err := parseEndpoint(opts.URL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:   opts,
		ep:     ep,
		log:    opts.Logger,
		queue:  newEventQueue(),
		accum:  newAccumulator(opts.MaxMessageSize),
		stopCh: make(chan struct{}),
	}
	if opts.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.SendBurst)
	}
	c.state.Store(int32(StateInit))
	return c, nil
}

// Events returns the ordered event stream for this client. The channel
// closes after EventFinished.
func (c *Client) Events() <-chan Event {
	return c.queue.events()
}

// State returns the current lifecycle state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected reports whether the handshake completed and the
// connection has not begun closing.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// Subprotocol returns the subprotocol the server selected during the
// current connection's handshake, or "" when not connected or none was
// negotiated.
func (c *Client) Subprotocol() string {
	if cn := c.current.Load(); cn != nil {
		return cn.stack.Subprotocol()
	}
	return ""
}

// Start launches the background task. It may be called once.
func (c *Client) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop requests a graceful shutdown: the background task notices at
// its next suspension point, completes the close handshake, tears the
// transport down and emits Finished. Stop blocks until the task exits.
func (c *Client) Stop() {
	c.requestStop()
	c.wg.Wait()
}

// Abort is Stop without the graceful close handshake: the transport
// stack is torn down immediately. Safe to call on top of other close
// paths; every layer's close is idempotent.
func (c *Client) Abort() {
	c.aborted.Store(true)
	c.requestStop()
	c.wg.Wait()
}

func (c *Client) requestStop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Client) stopRequested() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// run is the background task: one connection cycle per iteration, with
// a fixed reconnect delay between cycles unless reconnect is disabled.
func (c *Client) run() {
	defer c.wg.Done()

	failures := 0
	for {
		if c.stopRequested() {
			break
		}

		c.queue.push(Event{Type: EventBegin})
		cn, err := c.dial()
		if err != nil {
			failures++
			c.state.Store(int32(StateError))
			c.queue.push(Event{Type: EventError, Err: classifyError(err)})
			c.queue.push(Event{Type: EventDisconnected})
			c.state.Store(int32(StateClosed))
		} else {
			failures = 0
			c.current.Store(cn)
			c.queue.push(Event{Type: EventConnected})
			cn.wg.Add(1)
			go cn.writerLoop()
			cn.readLoop()
			cn.wg.Wait()
			c.current.Store(nil)
		}

		if c.opts.DisableAutoReconnect {
			break
		}
		if c.opts.MaxReconnectAttempts > 0 && failures >= c.opts.MaxReconnectAttempts {
			break
		}
		if c.stopRequested() {
			break
		}

		c.log.Debug("reconnecting", slog.Duration("delay", c.opts.ReconnectDelay))
		select {
		case <-c.stopCh:
		case <-time.After(c.opts.ReconnectDelay):
		}
	}

	c.state.Store(int32(StateClosed))
	c.queue.push(Event{Type: EventFinished})
	c.queue.close()
}

// dial opens the transport stack and runs the handshake. Stop cancels
// an in-flight dial.
func (c *Client) dial() (*conn, error) {
	c.state.Store(int32(StateConnecting))

	stack := newTransportStack(c.opts, c.ep)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.NetworkTimeout)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := stack.Open(ctx); err != nil {
		return nil, err
	}

	cn := newConn(c, stack)
	c.state.Store(int32(StateOpen))
	return cn, nil
}
