package wslink

import (
	"errors"
	"testing"
	"time"
)

func TestEventQueueOrdering(t *testing.T) {
	q := newEventQueue()

	const n = 200
	for i := 0; i < n; i++ {
		q.push(Event{Type: EventData, Data: &DataEvent{Offset: i}})
	}
	q.close()

	i := 0
	for ev := range q.events() {
		if ev.Data.Offset != i {
			t.Fatalf("event %d delivered out of order (offset %d)", i, ev.Data.Offset)
		}
		i++
	}
	if i != n {
		t.Fatalf("received %d events, want %d", i, n)
	}
}

func TestEventQueueCloseDrainsThenCloses(t *testing.T) {
	q := newEventQueue()
	q.push(Event{Type: EventError})
	q.push(Event{Type: EventDisconnected})
	q.close()

	// pushes after close are dropped, not delivered and not panicking
	q.push(Event{Type: EventData})

	var got []EventType
	for ev := range q.events() {
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[0] != EventError || got[1] != EventDisconnected {
		t.Fatalf("drained %v, want [error disconnected]", got)
	}
}

func TestEventQueuePushNeverBlocks(t *testing.T) {
	q := newEventQueue()

	// nobody is consuming; a thousand pushes must still return promptly
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.push(Event{Type: EventData})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a slow consumer")
	}
	q.close()
	for range q.events() {
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
	}{
		{
			name:     "handshake failure",
			err:      &HandshakeError{StatusCode: 502, Err: ErrHandshakeBadStatus},
			wantKind: KindHandshake,
		},
		{
			name:     "tcp failure",
			err:      &TransportError{Layer: LayerTCP, Op: "dial", Err: errors.New("refused")},
			wantKind: KindTCP,
		},
		{
			name:     "tls failure",
			err:      &TransportError{Layer: LayerTLS, Op: "handshake", Err: errors.New("bad cert")},
			wantKind: KindTLS,
		},
		{
			name:     "wrapped fatal transport failure",
			err:      fatal(&TransportError{Layer: LayerTCP, Op: "write", Err: errors.New("reset")}),
			wantKind: KindTCP,
		},
		{
			name:     "protocol violation",
			err:      protoErr(ErrInvalidOpcode),
			wantKind: KindProtocol,
		},
		{
			name:     "size limit",
			err:      ErrMessageTooLarge,
			wantKind: KindSizeLimit,
		},
		{
			name:     "pong timeout",
			err:      ErrPongTimeout,
			wantKind: KindTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := classifyError(tt.err)
			if ev.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", ev.Kind, tt.wantKind)
			}
			if ev.Err == nil {
				t.Error("Err not carried through")
			}
		})
	}
}

func TestClassifyErrorCloseCode(t *testing.T) {
	ev := classifyError(&CloseError{Code: CloseGoingAway, Reason: "bye"})
	if ev.CloseCode != CloseGoingAway {
		t.Fatalf("CloseCode = %d, want %d", ev.CloseCode, CloseGoingAway)
	}
}

func TestClassifyErrorHandshakeStatus(t *testing.T) {
	ev := classifyError(&HandshakeError{StatusCode: 401, Err: ErrHandshakeBadStatus})
	if ev.HandshakeStatus != 401 {
		t.Fatalf("HandshakeStatus = %d, want 401", ev.HandshakeStatus)
	}
}
