package p2p

import (
	"context"
	"sync"
	"time"
)

// HeartbeatInterval is the presence gossip cadence (spec §6.4).
const HeartbeatInterval = 5 * time.Second

// PresenceTracker maintains the locally-observed online set spec §6.3's
// onPresence hook reports from: every peer session that has sent a
// HEARTBEAT (or any traffic) within HeartbeatInterval*2 is considered
// online.
type PresenceTracker struct {
	host   *Host
	onlineWindow time.Duration

	mu     sync.Mutex
	online map[string]time.Time

	onChange func(nodeID string, isOnline bool)
}

// NewPresenceTracker builds a tracker bound to host.
func NewPresenceTracker(host *Host) *PresenceTracker {
	return &PresenceTracker{
		host:         host,
		onlineWindow: 2 * HeartbeatInterval,
		online:       make(map[string]time.Time),
	}
}

// OnChange registers a callback fired when a node transitions online/offline.
func (p *PresenceTracker) OnChange(fn func(nodeID string, isOnline bool)) {
	p.onChange = fn
}

// Run sends HEARTBEAT to every session and sweeps the online set every
// HeartbeatInterval until ctx is done.
func (p *PresenceTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *PresenceTracker) tick() {
	seen := make([]string, 0)
	for _, s := range p.host.Sessions() {
		_ = s.SendMessage(MsgHeartbeat, HeartbeatPayload{IsOnline: true, SeenNodes: p.OnlineNodes()})
		if s.PeerID() != "" && time.Since(s.LastSeen()) <= p.onlineWindow {
			seen = append(seen, s.PeerID())
		}
	}
	p.markSeen(seen)
	p.sweep()
}

func (p *PresenceTracker) markSeen(nodeIDs []string) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range nodeIDs {
		if _, wasOnline := p.online[id]; !wasOnline && p.onChange != nil {
			p.onChange(id, true)
		}
		p.online[id] = now
	}
}

// sweep marks nodes whose last heartbeat fell outside the window as offline.
func (p *PresenceTracker) sweep() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, last := range p.online {
		if now.Sub(last) > p.onlineWindow {
			delete(p.online, id)
			if p.onChange != nil {
				p.onChange(id, false)
			}
		}
	}
}

// OnlineNodes returns the locally-observed online set.
func (p *PresenceTracker) OnlineNodes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	return out
}

// IsOnline reports whether nodeID was heard from within the online window.
func (p *PresenceTracker) IsOnline(nodeID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.online[nodeID]
	if !ok {
		return false
	}
	return time.Since(last) <= p.onlineWindow
}
