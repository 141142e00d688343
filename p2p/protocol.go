package p2p

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"glowmesh/core/chain"
	"glowmesh/core/types"
	"glowmesh/crypto"
	"glowmesh/merkle"
)

// ProtocolVersion is the wire version carried in every HELLO (spec §6.4).
const ProtocolVersion = 1

// SyncWatchdog bounds how long a single in-flight sync may run before the
// session's single-flight guard is released regardless of outcome (spec
// §4.7's 30s watchdog).
const SyncWatchdog = 30 * time.Second

// Inbound message budget per remote address, grounded on the teacher's
// per-peer tokenBucket (p2p/peer.go) but applied at the Host level since
// this Dispatcher has no persistent Peer object of its own.
const (
	inboundMessageRate  = 50.0
	inboundMessageBurst = 100.0
)

// helloNonceTTL bounds how long a HELLO's nonce is remembered for replay
// detection (spec §6.1's handshake).
const helloNonceTTL = 15 * time.Minute

// Host owns the set of live sessions for one local node and dispatches
// every inbound Envelope against the local chain, grounded on the
// teacher's Server type (now removed) minus its ECDSA handshake: identity
// here is proven by an Ed25519 signature over the HELLO payload's node id
// instead of a raw key-exchange handshake.
type Host struct {
	chain    *chain.Chain
	key      *crypto.PrivateKey
	nodeID   string
	nodeType NodeType
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	seen     *seenCache
	limiter  *ipRateLimiter
	nonces   *nonceGuard

	onNewBlock func(types.Block)
}

// NewHost constructs a Host bound to chain, signing HELLOs with key.
func NewHost(c *chain.Chain, key *crypto.PrivateKey, nodeType NodeType, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		chain:    c,
		key:      key,
		nodeID:   key.Public().NodeID(),
		nodeType: nodeType,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
		seen:     newSeenCache(),
		limiter:  newIPRateLimiter(inboundMessageRate, inboundMessageBurst),
		nonces:   newNonceGuard(helloNonceTTL),
	}
}

// OnNewBlock registers a callback invoked whenever a block is appended as a
// result of network traffic (sync, merge, or direct NEW_BLOCK append), the
// hook spec §6.3 names onSyncProgress/onNodeMap builds from.
func (h *Host) OnNewBlock(fn func(types.Block)) { h.onNewBlock = fn }

// Register adds s to the host's live session set.
func (h *Host) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes s from the host's live session set.
func (h *Host) Unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// Sessions returns a snapshot of currently registered sessions.
func (h *Host) Sessions() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast sends env to every session except excluding, the gossip loop
// prevention rule spec §4.7 names ("exclude origin peer on rebroadcast").
func (h *Host) Broadcast(env Envelope, excluding *Session) {
	if h.seen.Seen(env) {
		return
	}
	for _, s := range h.Sessions() {
		if s == excluding {
			continue
		}
		if err := s.Send(env); err != nil {
			h.logger.Warn("p2p: broadcast send failed", "peer", s.PeerID(), "err", err)
		}
	}
}

// SendHello sends the local node's HELLO over s (spec §6.1).
func (h *Host) SendHello(s *Session) error {
	tip, _ := h.chain.Tip()
	var latestHash *string
	if tip.Hash != "" {
		hash := tip.Hash
		latestHash = &hash
	}
	payload := HelloPayload{
		NodeID:          h.nodeID,
		PublicKey:       h.key.Public().Base64(),
		ChainLength:     uint64(h.chain.Len()),
		LatestHash:      latestHash,
		ProtocolVersion: ProtocolVersion,
		NodeType:        h.nodeType,
		ChainEpoch:      genesisHashOf(h.chain),
		Nonce:           newHelloNonce(),
	}
	s.SetState(StateHelloSent)
	return s.SendMessage(MsgHello, payload)
}

// newHelloNonce returns a fresh random hex token for a HELLO's replay guard.
func newHelloNonce() string {
	var buf [16]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}

func genesisHashOf(c *chain.Chain) string {
	genesis, ok := c.BlockAt(0)
	if !ok {
		return ""
	}
	return genesis.Hash
}

// Dispatch implements Dispatcher against h.chain (spec §4.7's message
// table). Authorization failures are logged and return nil; payload decode
// errors and send errors are returned, and Session.Run logs them and keeps
// reading. The outer Envelope is decoded by Session.Run, not here.
func (h *Host) Dispatch(ctx context.Context, s *Session, env Envelope) error {
	if !h.limiter.allow(s.RemoteAddr(), time.Now()) {
		h.logger.Warn("p2p: dropping message over peer rate limit", "peer", s.PeerID(), "addr", s.RemoteAddr(), "type", env.Type)
		return nil
	}
	switch env.Type {
	case MsgHello:
		return h.handleHello(ctx, s, env)
	case MsgSyncRequest:
		return h.handleSyncRequest(ctx, s, env)
	case MsgSyncResponse:
		return h.handleSyncResponse(ctx, s, env)
	case MsgNewBlock:
		return h.handleNewBlock(ctx, s, env)
	case MsgHeaderSyncRequest:
		return h.handleHeaderSyncRequest(ctx, s, env)
	case MsgHeaderSyncResponse:
		// Light clients consume header ranges; full nodes have no use for
		// them and simply drop the response.
		return nil
	case MsgMerkleProofRequest:
		return h.handleMerkleProofRequest(ctx, s, env)
	case MsgMerkleProofResponse:
		return nil
	case MsgHeartbeat:
		return h.handleHeartbeat(ctx, s, env)
	case MsgParentRequest:
		return h.handleParentRequest(ctx, s, env)
	case MsgParentResponse:
		return nil
	default:
		// Unknown message types are forward-compatibility, not errors.
		return nil
	}
}

func (h *Host) handleHello(ctx context.Context, s *Session, env Envelope) error {
	var payload HelloPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("p2p: decode HELLO: %w", err)
	}
	pub, err := crypto.PublicKeyFromBase64(payload.PublicKey)
	if err != nil {
		return fmt.Errorf("p2p: decode HELLO public key: %w", err)
	}
	if crypto.NodeIDFromBytes(pub.Bytes()) != payload.NodeID {
		return fmt.Errorf("p2p: HELLO node id does not match declared public key")
	}
	if !h.nonces.Remember(payload.NodeID, payload.Nonce, time.Now()) {
		h.logger.Warn("p2p: rejecting replayed or missing HELLO nonce", "peer", payload.NodeID)
		return nil
	}
	s.SetPeer(payload.NodeID, pub, payload.NodeType)

	wasInit := s.State() == StateInit
	s.SetState(StateReady)
	if wasInit {
		if err := h.SendHello(s); err != nil {
			return err
		}
	}

	// Sync decision (spec §4.7): every accepted HELLO requests a sync, which
	// also covers a differing latest hash and a genesis-only local chain.
	return s.SendMessage(MsgSyncRequest, SyncRequestPayload{FromIndex: uint64(h.chain.Len())})
}

func (h *Host) handleSyncRequest(ctx context.Context, s *Session, env Envelope) error {
	var payload SyncRequestPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("p2p: decode SYNC_REQUEST: %w", err)
	}
	blocks := h.chain.Blocks()
	if int(payload.FromIndex) > len(blocks) {
		payload.FromIndex = uint64(len(blocks))
	}
	return s.SendMessage(MsgSyncResponse, SyncResponsePayload{Blocks: blocks[payload.FromIndex:]})
}

func (h *Host) handleSyncResponse(ctx context.Context, s *Session, env Envelope) error {
	if !s.TrySetSyncing() {
		return nil
	}
	cleared := make(chan struct{})
	timer := time.AfterFunc(SyncWatchdog, func() {
		s.ClearSyncing()
		close(cleared)
	})
	defer func() {
		if timer.Stop() {
			s.ClearSyncing()
		}
	}()

	var payload SyncResponsePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("p2p: decode SYNC_RESPONSE: %w", err)
	}
	if len(payload.Blocks) == 0 {
		return nil
	}

	local := h.chain.Blocks()
	if !genesisCompatibleBlocks(local, payload.Blocks) {
		h.logger.Warn("p2p: rejecting sync response with incompatible genesis", "peer", s.PeerID())
		return nil
	}

	if len(payload.Blocks) > len(local) {
		if err := h.chain.ReplaceChainContext(ctx, payload.Blocks); err != nil {
			h.logger.Warn("p2p: replace chain rejected", "peer", s.PeerID(), "err", err)
		} else if h.onNewBlock != nil {
			if tip, ok := h.chain.Tip(); ok {
				h.onNewBlock(tip)
			}
		}
	}

	donated, err := h.chain.MergeUniqueNodes(payload.Blocks, s.PeerID())
	if err != nil {
		h.logger.Warn("p2p: merge unique nodes failed", "peer", s.PeerID(), "err", err)
		return nil
	}
	for _, block := range donated {
		h.Broadcast(mustNewBlockEnvelope(block), s)
		if h.onNewBlock != nil {
			h.onNewBlock(block)
		}
	}
	return nil
}

func genesisCompatibleBlocks(local, candidate []types.Block) bool {
	if len(local) == 0 || len(candidate) == 0 {
		return true
	}
	return local[0].Hash == candidate[0].Hash
}

func mustNewBlockEnvelope(block types.Block) Envelope {
	raw, _ := json.Marshal(NewBlockPayload{Block: block})
	return Envelope{Type: MsgNewBlock, Payload: raw}
}

func (h *Host) handleNewBlock(ctx context.Context, s *Session, env Envelope) error {
	var payload NewBlockPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("p2p: decode NEW_BLOCK: %w", err)
	}
	block := payload.Block
	expected := uint64(h.chain.Len())

	switch {
	case block.Header.Index < expected:
		// Already have this height; only worth anything if it carries a
		// NODE_JOIN we don't yet know about (spec §4.7).
		donated, err := h.chain.MergeUniqueNodes([]types.Block{block}, s.PeerID())
		if err != nil || len(donated) == 0 {
			return nil
		}
		for _, b := range donated {
			h.Broadcast(mustNewBlockEnvelope(b), s)
			if h.onNewBlock != nil {
				h.onNewBlock(b)
			}
		}
		return nil

	case block.Header.Index > expected:
		return s.SendMessage(MsgSyncRequest, SyncRequestPayload{FromIndex: expected})

	default:
		tip, ok := h.chain.Tip()
		if ok {
			if block.Header.PreviousHash == nil || *block.Header.PreviousHash != tip.Hash {
				h.logger.Warn("p2p: NEW_BLOCK previousHash mismatch, triggering sync", "peer", s.PeerID())
				return s.SendMessage(MsgSyncRequest, SyncRequestPayload{FromIndex: expected})
			}
		}
		if err := h.chain.ApplyContext(ctx, block); err != nil {
			h.logger.Warn("p2p: rejecting NEW_BLOCK", "peer", s.PeerID(), "err", err)
			return nil
		}
		h.Broadcast(env, s)
		if h.onNewBlock != nil {
			h.onNewBlock(block)
		}
		return nil
	}
}

// Propose applies a locally authored block and gossips it. Proposing is
// fire-and-forget to apply (spec §4.7): there is no vote/commit round, the
// block either structurally validates and commits immediately or it does
// not exist.
func (h *Host) Propose(block types.Block) error {
	if err := h.chain.Apply(block); err != nil {
		return err
	}
	h.Broadcast(mustNewBlockEnvelope(block), nil)
	if h.onNewBlock != nil {
		h.onNewBlock(block)
	}
	return nil
}

func (h *Host) handleHeaderSyncRequest(ctx context.Context, s *Session, env Envelope) error {
	var payload HeaderSyncRequestPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("p2p: decode HEADER_SYNC_REQUEST: %w", err)
	}
	var headers []types.LightHeader
	for i := payload.FromIndex; i <= payload.ToIndex; i++ {
		block, ok := h.chain.BlockAt(i)
		if !ok {
			break
		}
		headers = append(headers, types.LightHeader{Header: block.Header, Hash: block.Hash})
	}
	return s.SendMessage(MsgHeaderSyncResponse, HeaderSyncResponsePayload{Headers: headers})
}

func (h *Host) handleMerkleProofRequest(ctx context.Context, s *Session, env Envelope) error {
	var payload MerkleProofRequestPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("p2p: decode MERKLE_PROOF_REQUEST: %w", err)
	}
	proof, err := h.chain.ProveTransaction(payload.BlockIndex, payload.TransactionIndex)
	if err != nil {
		return s.SendMessage(MsgMerkleProofResponse, MerkleProofResponsePayload{
			BlockIndex:       payload.BlockIndex,
			TransactionIndex: payload.TransactionIndex,
			Found:            false,
		})
	}
	return s.SendMessage(MsgMerkleProofResponse, MerkleProofResponsePayload{
		BlockIndex:       proof.BlockIndex,
		BlockHash:        proof.BlockHash,
		Header:           proof.Header,
		TransactionIndex: proof.TransactionIndex,
		Transaction:      proof.Transaction,
		Proof:            toWireProof(proof.Proof),
		Found:            true,
	})
}

func toWireProof(steps []merkle.ProofStep) []ProofStepWire {
	out := make([]ProofStepWire, len(steps))
	for i, step := range steps {
		out[i] = ProofStepWire{Sibling: step.Sibling, Side: bool(step.Side)}
	}
	return out
}

func (h *Host) handleHeartbeat(ctx context.Context, s *Session, env Envelope) error {
	s.MarkSeen()
	return nil
}

// handleParentRequest forwards a child's attachment ask toward the named
// parent if that parent is one of our own sessions; full routing/retry
// lives in parentqueue.go.
func (h *Host) handleParentRequest(ctx context.Context, s *Session, env Envelope) error {
	var payload ParentRequestPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("p2p: decode PARENT_REQUEST: %w", err)
	}
	for _, other := range h.Sessions() {
		if other.PeerID() == payload.ParentID {
			return other.Send(env)
		}
	}
	return nil
}
