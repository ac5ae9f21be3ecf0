// Package wslink is a WebSocket client protocol engine for Go.
//
// wslink owns the hard parts of a WebSocket client: the upgrade
// handshake, RFC 6455 framing and masking, reassembly of fragmented
// messages, automatic ping/pong and close handling, and a layered
// transport stack (TCP, optional TLS, WebSocket) whose teardown is
// idempotent no matter how many code paths request it.
//
// # Model
//
// One background goroutine per client drives the connection: it dials
// the transport stack, performs the handshake, reads frames, and
// reassembles messages. The application talks to the client only
// through thread-safe entry points (Start, Stop, Abort, Send,
// IsConnected) and consumes results from a single ordered event
// channel.
//
// # Features
//
//   - Automatic ping/pong and close-frame echoing
//   - Fragment and chunk reassembly with a bounded accumulator
//   - Send-path retry with bounded backoff on transient failures
//   - Auto-reconnect on a fixed interval, with an opt out
//   - Exactly-once transport teardown, even on redundant error paths
package wslink
