package p2p

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"glowmesh/crypto"
)

var pipeTransportSeq int64

// pipeTransport adapts a net.Conn half of a net.Pipe into Transport for
// tests, since net.Conn's RemoteAddr() returns net.Addr, not string.
type pipeTransport struct {
	net.Conn
	addr string
}

func (t *pipeTransport) RemoteAddr() string { return t.addr }

func newPipeTransports() (Transport, Transport) {
	n := atomic.AddInt64(&pipeTransportSeq, 1)
	a, b := net.Pipe()
	return &pipeTransport{Conn: a, addr: fmt.Sprintf("peer-a-%d", n)}, &pipeTransport{Conn: b, addr: fmt.Sprintf("peer-b-%d", n)}
}

// recordingDispatcher stores every envelope handed to it by a session's
// read loop and answers with dispatchErr.
type recordingDispatcher struct {
	mu          sync.Mutex
	received    []Envelope
	dispatchErr error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, s *Session, env Envelope) error {
	d.mu.Lock()
	d.received = append(d.received, env)
	d.mu.Unlock()
	return d.dispatchErr
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.received)
}

func TestSessionSendMessageDeliversEnvelopeToPeerDispatcher(t *testing.T) {
	clientTransport, serverTransport := newPipeTransports()
	dispatcher := &recordingDispatcher{}
	server := NewSession(serverTransport, dispatcher, nil)
	client := NewSession(clientTransport, &recordingDispatcher{}, nil)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	if err := client.SendMessage(MsgHeartbeat, HeartbeatPayload{IsOnline: true}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for dispatcher.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if dispatcher.count() != 1 {
		t.Fatalf("dispatcher received %d envelopes, want 1", dispatcher.count())
	}
	if dispatcher.received[0].Type != MsgHeartbeat {
		t.Fatalf("received type = %s, want %s", dispatcher.received[0].Type, MsgHeartbeat)
	}
}

func TestTrySetSyncingIsSingleFlight(t *testing.T) {
	transport, _ := newPipeTransports()
	s := NewSession(transport, &recordingDispatcher{}, nil)
	defer s.Close()

	if !s.TrySetSyncing() {
		t.Fatal("expected first TrySetSyncing to succeed")
	}
	if s.TrySetSyncing() {
		t.Fatal("expected second TrySetSyncing to fail while syncing")
	}
	if s.State() != StateSyncing {
		t.Fatalf("state = %s, want %s", s.State(), StateSyncing)
	}
	s.ClearSyncing()
	if s.State() != StateIdle {
		t.Fatalf("state after ClearSyncing = %s, want %s", s.State(), StateIdle)
	}
	if !s.TrySetSyncing() {
		t.Fatal("expected TrySetSyncing to succeed again after clearing")
	}
}

func TestSessionCloseIsIdempotentAndClosesDoneChannel(t *testing.T) {
	transport, _ := newPipeTransports()
	s := NewSession(transport, &recordingDispatcher{}, nil)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done() channel to be closed")
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s, want %s", s.State(), StateClosed)
	}
}

func TestSessionRunReturnsNilOnTransportClose(t *testing.T) {
	serverSide, clientSide := newPipeTransports()
	s := NewSession(serverSide, &recordingDispatcher{}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Closing the peer's end of the pipe makes the session's blocking
	// Decode observe io.EOF, the only path Run treats as a clean exit.
	clientSide.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() err = %v, want nil on peer close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the peer closed the transport")
	}
}

func TestSessionMarkSeenAdvancesLastSeen(t *testing.T) {
	transport, _ := newPipeTransports()
	s := NewSession(transport, &recordingDispatcher{}, nil)
	defer s.Close()

	before := s.LastSeen()
	time.Sleep(time.Millisecond)
	s.MarkSeen()
	if !s.LastSeen().After(before) {
		t.Fatal("expected MarkSeen to advance LastSeen")
	}
}

func TestSessionSetPeerRecordsIdentity(t *testing.T) {
	transport, _ := newPipeTransports()
	s := NewSession(transport, &recordingDispatcher{}, nil)
	defer s.Close()

	priv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	s.SetPeer("node-1", priv.Public(), NodeTypeLight)
	if s.PeerID() != "node-1" {
		t.Fatalf("PeerID() = %s, want node-1", s.PeerID())
	}
	if s.NodeType() != NodeTypeLight {
		t.Fatalf("NodeType() = %s, want %s", s.NodeType(), NodeTypeLight)
	}
	if s.PeerPublicKey() == nil {
		t.Fatal("expected PeerPublicKey to be set")
	}
}
