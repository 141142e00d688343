// Package ledger adapts the replicated chain into the read-model facade
// spec §6.3 names: a subscribe/query surface that fires onNodeMap,
// onPresence, and onSyncProgress events for downstream consumers (wallet
// UIs, dashboards) that should never touch core/chain directly.
package ledger

import (
	"sync"
	"time"

	"glowmesh/core/chain"
)

// SyncStatus enumerates onSyncProgress's status field (spec §6.3).
type SyncStatus string

const (
	SyncConnecting SyncStatus = "connecting"
	SyncSyncing    SyncStatus = "syncing"
	SyncComplete   SyncStatus = "complete"
	SyncError      SyncStatus = "error"
	SyncIdle       SyncStatus = "idle"
)

// SyncProgress is the payload onSyncProgress fires (spec §6.3).
type SyncProgress struct {
	Status   SyncStatus `json:"status"`
	Current  uint64     `json:"current"`
	Total    uint64     `json:"total"`
	Message  string     `json:"message,omitempty"`
	Progress float64    `json:"progress"`
}

// Presence is the payload onPresence fires (spec §6.3).
type Presence struct {
	NodeID   string    `json:"nodeId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// NodeMapView is the read-only node map snapshot onNodeMap fires.
type NodeMapView map[string]chain.NodeMapEntry

// Adapter subscribes to a Chain and rebroadcasts its state as the three
// named events, decoupling every read-only consumer from core/chain's
// mutation-serializing mutex.
type Adapter struct {
	c *chain.Chain

	mu              sync.Mutex
	nodeMapSubs     []func(NodeMapView)
	presenceSubs    []func(Presence)
	syncProgressSubs []func(SyncProgress)
}

// New builds an Adapter bound to c. NotifyNodeMap fires only when a caller
// invokes it, e.g. from a p2p.Host OnNewBlock callback after every
// mutation; Adapter itself never mutates c.
func New(c *chain.Chain) *Adapter {
	return &Adapter{c: c}
}

// OnNodeMap registers a callback fired with the current node map whenever
// NotifyNodeMap is invoked.
func (a *Adapter) OnNodeMap(fn func(NodeMapView)) {
	a.mu.Lock()
	a.nodeMapSubs = append(a.nodeMapSubs, fn)
	a.mu.Unlock()
}

// OnPresence registers a callback for presence transitions.
func (a *Adapter) OnPresence(fn func(Presence)) {
	a.mu.Lock()
	a.presenceSubs = append(a.presenceSubs, fn)
	a.mu.Unlock()
}

// OnSyncProgress registers a callback for sync progress checkpoints.
func (a *Adapter) OnSyncProgress(fn func(SyncProgress)) {
	a.mu.Lock()
	a.syncProgressSubs = append(a.syncProgressSubs, fn)
	a.mu.Unlock()
}

// NotifyNodeMap snapshots the chain's current node map and fires every
// registered onNodeMap subscriber.
func (a *Adapter) NotifyNodeMap() {
	view := a.NodeMap()
	a.mu.Lock()
	subs := append([]func(NodeMapView){}, a.nodeMapSubs...)
	a.mu.Unlock()
	for _, fn := range subs {
		fn(view)
	}
}

// NotifyPresence fires every registered onPresence subscriber with p.
func (a *Adapter) NotifyPresence(p Presence) {
	a.mu.Lock()
	subs := append([]func(Presence){}, a.presenceSubs...)
	a.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
}

// NotifySyncProgress fires every registered onSyncProgress subscriber with p.
func (a *Adapter) NotifySyncProgress(p SyncProgress) {
	a.mu.Lock()
	subs := append([]func(SyncProgress){}, a.syncProgressSubs...)
	a.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
}

// NodeMap returns a snapshot of the current node map, for direct query
// consumers that don't need the subscribe model.
func (a *Adapter) NodeMap() NodeMapView {
	var view NodeMapView
	a.c.WithState(func(state *chain.DerivedState) {
		view = make(NodeMapView, len(state.NodeMap))
		for id, entry := range state.NodeMap {
			view[id] = *entry
		}
	})
	return view
}

// Chain exposes the underlying chain for callers that need direct
// read-only access (e.g. glow.Score).
func (a *Adapter) Chain() *chain.Chain { return a.c }
