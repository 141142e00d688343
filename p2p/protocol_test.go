package p2p

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"glowmesh/core/chain"
	"glowmesh/core/types"
	"glowmesh/crypto"
	"glowmesh/merkle"
)

func genesisBlock(t *testing.T, marker string) types.Block {
	t.Helper()
	payload, err := json.Marshal(types.GenesisPayload{UniqueMarker: marker})
	if err != nil {
		t.Fatalf("marshal genesis payload: %v", err)
	}
	tx := types.Transaction{
		Type:      types.TxGenesis,
		Timestamp: 1000,
		Sender:    types.SystemSigner,
		Payload:   payload,
		Signature: types.SystemSigner,
	}
	leafBytes, err := tx.SigningBytes()
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	root := merkle.New([]string{merkle.LeafHash(leafBytes)}).Root()
	block := types.Block{
		Header: types.BlockHeader{
			Index:      0,
			Timestamp:  1000,
			MerkleRoot: root,
			Proposer:   types.SystemSigner,
		},
		Transactions: []types.Transaction{tx},
	}
	if err := block.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return block
}

func nodeJoinBlock(t *testing.T, prev types.Block, nodeID string) types.Block {
	t.Helper()
	payload, err := json.Marshal(types.NodeJoinPayload{Name: nodeID, PublicKey: "pubkey-" + nodeID})
	if err != nil {
		t.Fatalf("marshal join payload: %v", err)
	}
	tx := types.Transaction{
		Type:      types.TxNodeJoin,
		Timestamp: 2000,
		Sender:    nodeID,
		NodeID:    nodeID,
		Payload:   payload,
		Signature: "sig-" + nodeID,
	}
	leafBytes, err := tx.SigningBytes()
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	root := merkle.New([]string{merkle.LeafHash(leafBytes)}).Root()
	prevHash := prev.Hash
	block := types.Block{
		Header: types.BlockHeader{
			Index:        prev.Header.Index + 1,
			Timestamp:    2000,
			PreviousHash: &prevHash,
			MerkleRoot:   root,
			Proposer:     nodeID,
		},
		Transactions: []types.Transaction{tx},
	}
	if err := block.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return block
}

func newTestHost(t *testing.T, marker string) (*Host, *chain.Chain) {
	t.Helper()
	c, err := chain.NewGenesis(genesisBlock(t, marker))
	if err != nil {
		t.Fatalf("NewGenesis: %v", err)
	}
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return NewHost(c, key, NodeTypeFull, nil), c
}

func TestDispatchHelloRespondsReadyAndRecordsPeer(t *testing.T) {
	host, _ := newTestHost(t, "a")
	serverTransport, clientTransport := newPipeTransports()
	defer clientTransport.Close()
	// net.Pipe is unbuffered: drain the HELLO and SYNC_REQUEST replies.
	go io.Copy(io.Discard, clientTransport)
	session := NewSession(serverTransport, host, nil)
	defer session.Close()

	peerKey, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	hello := HelloPayload{
		NodeID:          peerKey.Public().NodeID(),
		PublicKey:       peerKey.Public().Base64(),
		ChainLength:     5,
		ProtocolVersion: ProtocolVersion,
		NodeType:        NodeTypeFull,
		Nonce:           "aa11bb22",
	}
	raw, err := json.Marshal(hello)
	if err != nil {
		t.Fatalf("marshal hello: %v", err)
	}

	if err := host.Dispatch(context.Background(), session, Envelope{Type: MsgHello, Payload: raw}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if session.PeerID() != hello.NodeID {
		t.Fatalf("session peer id = %s, want %s", session.PeerID(), hello.NodeID)
	}
	if session.State() != StateReady {
		t.Fatalf("session state = %s, want %s", session.State(), StateReady)
	}
}

func TestDispatchHelloRejectsMismatchedNodeID(t *testing.T) {
	host, _ := newTestHost(t, "a")
	serverTransport, clientTransport := newPipeTransports()
	defer clientTransport.Close()
	session := NewSession(serverTransport, host, nil)
	defer session.Close()

	peerKey, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	hello := HelloPayload{
		NodeID:          "not-the-real-id",
		PublicKey:       peerKey.Public().Base64(),
		ProtocolVersion: ProtocolVersion,
		NodeType:        NodeTypeFull,
	}
	raw, err := json.Marshal(hello)
	if err != nil {
		t.Fatalf("marshal hello: %v", err)
	}

	if err := host.Dispatch(context.Background(), session, Envelope{Type: MsgHello, Payload: raw}); err == nil {
		t.Fatal("expected mismatched node id to be rejected")
	}
}

func TestDispatchHelloRejectsReplayedNonce(t *testing.T) {
	host, _ := newTestHost(t, "a")
	peerKey, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	hello := HelloPayload{
		NodeID:          peerKey.Public().NodeID(),
		PublicKey:       peerKey.Public().Base64(),
		ProtocolVersion: ProtocolVersion,
		NodeType:        NodeTypeFull,
		Nonce:           "cc33dd44",
	}
	raw, err := json.Marshal(hello)
	if err != nil {
		t.Fatalf("marshal hello: %v", err)
	}

	serverTransport, clientTransport := newPipeTransports()
	defer clientTransport.Close()
	// net.Pipe is unbuffered: drain the HELLO and SYNC_REQUEST replies.
	go io.Copy(io.Discard, clientTransport)
	first := NewSession(serverTransport, host, nil)
	defer first.Close()
	if err := host.Dispatch(context.Background(), first, Envelope{Type: MsgHello, Payload: raw}); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if first.State() != StateReady {
		t.Fatalf("first session state = %s, want %s", first.State(), StateReady)
	}

	serverTransport2, clientTransport2 := newPipeTransports()
	defer clientTransport2.Close()
	second := NewSession(serverTransport2, host, nil)
	defer second.Close()
	if err := host.Dispatch(context.Background(), second, Envelope{Type: MsgHello, Payload: raw}); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if second.State() == StateReady {
		t.Fatal("expected a replayed HELLO nonce to be rejected, not accepted")
	}
}

// dispatchFunc adapts a plain function to the Dispatcher interface.
type dispatchFunc func(ctx context.Context, s *Session, env Envelope) error

func (f dispatchFunc) Dispatch(ctx context.Context, s *Session, env Envelope) error {
	return f(ctx, s, env)
}

func TestDispatchSyncRequestReturnsBlocksFromIndex(t *testing.T) {
	host, _ := newTestHost(t, "a")
	serverTransport, clientTransport := newPipeTransports()
	defer serverTransport.Close()
	defer clientTransport.Close()

	received := make(chan Envelope, 1)
	reader := NewSession(clientTransport, dispatchFunc(func(ctx context.Context, s *Session, env Envelope) error {
		received <- env
		return nil
	}), nil)
	go reader.Run(context.Background())

	writerSession := NewSession(serverTransport, &recordingDispatcher{}, nil)
	defer writerSession.Close()

	req := SyncRequestPayload{FromIndex: 0}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := host.Dispatch(context.Background(), writerSession, Envelope{Type: MsgSyncRequest, Payload: raw}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	env := <-received
	if env.Type != MsgSyncResponse {
		t.Fatalf("response type = %s, want %s", env.Type, MsgSyncResponse)
	}
	var resp SyncResponsePayload
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1 (genesis only)", len(resp.Blocks))
	}
}

func TestProposeAppliesAndInvokesOnNewBlock(t *testing.T) {
	host, c := newTestHost(t, "a")
	var got types.Block
	host.OnNewBlock(func(b types.Block) { got = b })

	genesis, ok := c.BlockAt(0)
	if !ok {
		t.Fatal("expected genesis block")
	}
	block := nodeJoinBlock(t, genesis, "nA")

	if err := host.Propose(block); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if got.Header.Index != 1 {
		t.Fatalf("onNewBlock saw index %d, want 1", got.Header.Index)
	}
	if c.Len() != 2 {
		t.Fatalf("chain length = %d, want 2 after Propose", c.Len())
	}
}

func TestHandleHeartbeatMarksSessionSeen(t *testing.T) {
	host, _ := newTestHost(t, "a")
	serverTransport, clientTransport := newPipeTransports()
	defer clientTransport.Close()
	session := NewSession(serverTransport, host, nil)
	defer session.Close()

	before := session.LastSeen()
	raw, err := json.Marshal(HeartbeatPayload{IsOnline: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := host.Dispatch(context.Background(), session, Envelope{Type: MsgHeartbeat, Payload: raw}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !session.LastSeen().After(before) {
		t.Fatal("expected HEARTBEAT to mark the session seen")
	}
}

func TestDispatchDropsMessagesOverPeerRateLimit(t *testing.T) {
	host, _ := newTestHost(t, "a")
	host.limiter = newIPRateLimiter(1, 1)
	serverTransport, clientTransport := newPipeTransports()
	defer clientTransport.Close()
	session := NewSession(serverTransport, host, nil)
	defer session.Close()

	raw, err := json.Marshal(HeartbeatPayload{IsOnline: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := host.Dispatch(context.Background(), session, Envelope{Type: MsgHeartbeat, Payload: raw}); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	firstSeen := session.LastSeen()

	if err := host.Dispatch(context.Background(), session, Envelope{Type: MsgHeartbeat, Payload: raw}); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if session.LastSeen().After(firstSeen) {
		t.Fatal("expected the second heartbeat to be dropped by the per-peer rate limit")
	}
}

func TestDispatchParentRequestForwardsToMatchingSession(t *testing.T) {
	host, _ := newTestHost(t, "a")

	parentServerTransport, parentClientTransport := newPipeTransports()
	defer parentClientTransport.Close()
	parentSession := NewSession(parentServerTransport, host, nil)
	defer parentSession.Close()
	parentSession.SetPeer("parent-1", nil, NodeTypeFull)
	host.Register(parentSession)

	received := make(chan Envelope, 1)
	reader := NewSession(parentClientTransport, dispatchFunc(func(ctx context.Context, s *Session, env Envelope) error {
		received <- env
		return nil
	}), nil)
	go reader.Run(context.Background())

	originTransport, _ := newPipeTransports()
	origin := NewSession(originTransport, &recordingDispatcher{}, nil)
	defer origin.Close()

	payload := ParentRequestPayload{ChildID: "child-1", ParentID: "parent-1"}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := host.Dispatch(context.Background(), origin, Envelope{Type: MsgParentRequest, Payload: raw}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	env := <-received
	if env.Type != MsgParentRequest {
		t.Fatalf("forwarded type = %s, want %s", env.Type, MsgParentRequest)
	}
}
