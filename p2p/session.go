package p2p

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"glowmesh/crypto"
)

// SessionState is a peer connection's position in spec §4.7's per-peer
// state machine: INIT -> HELLO_SENT -> READY -> (SYNCING | IDLE) -> CLOSED.
type SessionState string

const (
	StateInit       SessionState = "INIT"
	StateHelloSent  SessionState = "HELLO_SENT"
	StateReady      SessionState = "READY"
	StateSyncing    SessionState = "SYNCING"
	StateIdle       SessionState = "IDLE"
	StateClosed     SessionState = "CLOSED"
)

// Transport is the framed, ordered, reliable byte stream spec §4.7 asks
// every peer connection ride on. Any io.ReadWriteCloser that delivers bytes
// in order without dropping or duplicating them satisfies it; ws_transport.go
// supplies the websocket-backed reference implementation.
type Transport interface {
	io.ReadWriteCloser
	RemoteAddr() string
}

// Dispatcher handles a decoded envelope for a session; replies are written
// through the session (protocol.go implements this against *chain.Chain).
type Dispatcher interface {
	Dispatch(ctx context.Context, s *Session, env Envelope) error
}

// Session is one peer connection's state machine and framed read/write
// loop, grounded on the teacher's Peer/Server read-loop-write-loop-plus-
// context-cancellation shape (now removed, since it depended on the
// teacher's ECDSA handshake), re-expressed over the JSON Envelope wire
// format and an Ed25519 HELLO instead of a raw handshake.
type Session struct {
	transport Transport
	dispatch  Dispatcher
	logger    *slog.Logger

	mu         sync.Mutex
	state      SessionState
	peerID     string
	peerPubKey *crypto.PublicKey
	nodeType   NodeType
	lastSeen   time.Time

	syncing bool

	writeMu sync.Mutex
	enc     *json.Encoder
	dec     *json.Decoder

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSession wraps transport in a fresh, not-yet-started session.
func NewSession(transport Transport, dispatch Dispatcher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		transport: transport,
		dispatch:  dispatch,
		logger:    logger,
		state:     StateInit,
		lastSeen:  time.Now(),
		enc:       json.NewEncoder(transport),
		dec:       json.NewDecoder(bufio.NewReader(transport)),
		closed:    make(chan struct{}),
	}
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session to next.
func (s *Session) SetState(next SessionState) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// PeerID returns the remote node id learned from its HELLO, if any.
func (s *Session) PeerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// SetPeer records the remote node's identity, learned from HELLO.
func (s *Session) SetPeer(nodeID string, pub *crypto.PublicKey, nodeType NodeType) {
	s.mu.Lock()
	s.peerID = nodeID
	s.peerPubKey = pub
	s.nodeType = nodeType
	s.mu.Unlock()
}

// PeerPublicKey returns the remote node's public key, if known.
func (s *Session) PeerPublicKey() *crypto.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerPubKey
}

// NodeType returns the remote peer's declared node type.
func (s *Session) NodeType() NodeType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeType
}

// MarkSeen stamps the session's last-activity time (presence/heartbeat use).
func (s *Session) MarkSeen() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen reports the last-activity timestamp.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// TrySetSyncing is the single-flight guard spec §4.7's SYNC_RESPONSE
// handling needs: only one sync may be in flight per session at a time.
func (s *Session) TrySetSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	s.state = StateSyncing
	return true
}

// ClearSyncing releases the single-flight guard and returns to IDLE.
func (s *Session) ClearSyncing() {
	s.mu.Lock()
	s.syncing = false
	if s.state == StateSyncing {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// RemoteAddr reports the underlying transport's remote address, for logs
// and reputation keying.
func (s *Session) RemoteAddr() string {
	return s.transport.RemoteAddr()
}

// Send frames and writes env. Safe for concurrent use.
func (s *Session) Send(env Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(env); err != nil {
		return fmt.Errorf("p2p: session write: %w", err)
	}
	return nil
}

// SendMessage marshals payload and wraps it in an Envelope of the given type.
func (s *Session) SendMessage(kind MessageType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("p2p: marshal %s payload: %w", kind, err)
	}
	return s.Send(Envelope{Type: kind, Payload: raw})
}

// Run drives the session's read loop until ctx is cancelled, the transport
// closes, or a malformed frame is received. It is the read-loop half of the
// teacher's Peer.readLoop/writeLoop split; writes go directly through Send
// since JSON framing needs no separate writer goroutine.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		default:
		}

		var env Envelope
		if err := s.dec.Decode(&env); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("p2p: session decode: %w", err)
		}
		s.MarkSeen()

		if err := s.dispatch.Dispatch(ctx, s, env); err != nil {
			s.logger.Warn("p2p: dispatch failed", "peer", s.PeerID(), "type", env.Type, "err", err)
		}
	}
}

// Close terminates the session exactly once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.SetState(StateClosed)
		close(s.closed)
	})
	return s.transport.Close()
}

// Done reports whether the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}
