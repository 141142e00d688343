package p2p

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Connection bounds (spec §6.4).
const (
	MaxConnections      = 50
	MinConnections      = 5
	HealthCheckInterval = 60 * time.Second
	RotationInterval    = 5 * time.Minute
)

// HealthState is a session's observed liveness bucket.
type HealthState string

const (
	HealthGood    HealthState = "GOOD"
	HealthDegraded HealthState = "DEGRADED"
	HealthStale   HealthState = "STALE"
)

const (
	degradedAfter = 2 * HeartbeatInterval
	staleAfter    = 6 * HeartbeatInterval
)

// Dialer opens a new outbound session to addr.
type Dialer interface {
	Dial(ctx context.Context, addr string) (*Session, error)
}

// ConnManager runs periodic health checks that close stale sessions and
// refill up to MinConnections from seed candidates, and a rotation that,
// once MaxConnections sessions are open and a candidate is queued, evicts
// the lowest-priority session and dials a candidate. It does not cap or
// refuse sessions registered with the Host, so the session count can
// exceed MaxConnections; no admission check compares a new peer's
// priority against existing sessions. Grounded on the teacher's
// connmanager.go victimPeerIndex/seed-dialing shape (now removed along
// with the Server/Peer types it depended on), re-targeted at Host/Session.
type ConnManager struct {
	host   *Host
	dialer Dialer
	logger *slog.Logger

	mu         sync.Mutex
	candidates []string // seed addresses not yet connected
	reputation *ReputationManager
}

// NewConnManager builds a manager bound to host, dialing through dialer.
func NewConnManager(host *Host, dialer Dialer, reputation *ReputationManager, logger *slog.Logger) *ConnManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnManager{host: host, dialer: dialer, reputation: reputation, logger: logger}
}

// AddCandidate registers a seed address available for dialing when the
// connection count falls below MinConnections.
func (cm *ConnManager) AddCandidate(addr string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, existing := range cm.candidates {
		if existing == addr {
			return
		}
	}
	cm.candidates = append(cm.candidates, addr)
}

// Run drives periodic health checks and refill/rotation until ctx is done.
func (cm *ConnManager) Run(ctx context.Context) {
	healthTicker := time.NewTicker(HealthCheckInterval)
	rotateTicker := time.NewTicker(RotationInterval)
	defer healthTicker.Stop()
	defer rotateTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-healthTicker.C:
			cm.healthCheck(ctx)
		case <-rotateTicker.C:
			cm.rotate(ctx)
		}
	}
}

// healthCheck classifies every session by inactivity age, closes stale
// ones, and refills up to MinConnections from candidates.
func (cm *ConnManager) healthCheck(ctx context.Context) {
	now := time.Now()
	for _, s := range cm.host.Sessions() {
		age := now.Sub(s.LastSeen())
		state := cm.classify(age)
		if state == HealthStale {
			cm.logger.Warn("p2p: closing stale session", "peer", s.PeerID(), "idle", age)
			cm.host.Unregister(s)
			s.Close()
			if cm.reputation != nil {
				cm.reputation.PenalizeInvalidBlock(s.RemoteAddr(), now, false)
			}
		}
	}
	cm.refill(ctx)
}

func (cm *ConnManager) classify(age time.Duration) HealthState {
	switch {
	case age >= staleAfter:
		return HealthStale
	case age >= degradedAfter:
		return HealthDegraded
	default:
		return HealthGood
	}
}

// refill dials fresh candidates until MinConnections is satisfied or
// candidates are exhausted.
func (cm *ConnManager) refill(ctx context.Context) {
	if cm.dialer == nil {
		return
	}
	for len(cm.host.Sessions()) < MinConnections {
		addr, ok := cm.popCandidate()
		if !ok {
			return
		}
		s, err := cm.dialer.Dial(ctx, addr)
		if err != nil {
			cm.logger.Warn("p2p: dial failed", "addr", addr, "err", err)
			continue
		}
		cm.host.Register(s)
	}
}

func (cm *ConnManager) popCandidate() (string, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if len(cm.candidates) == 0 {
		return "", false
	}
	addr := cm.candidates[0]
	cm.candidates = cm.candidates[1:]
	return addr, true
}

// rotate evicts the lowest-priority session and dials a fresh candidate
// when the manager is at capacity, giving new/better-reputed peers a
// chance to displace long-idle low-value ones (spec §4.8's rotation).
func (cm *ConnManager) rotate(ctx context.Context) {
	sessions := cm.host.Sessions()
	if len(sessions) < MaxConnections {
		return
	}
	cm.mu.Lock()
	hasCandidate := len(cm.candidates) > 0
	cm.mu.Unlock()
	if !hasCandidate {
		return
	}
	victim := cm.victimSession(sessions)
	if victim == nil {
		return
	}
	cm.logger.Info("p2p: rotating out low-priority session", "peer", victim.PeerID())
	cm.host.Unregister(victim)
	victim.Close()
	cm.refill(ctx)
}

// victimSession picks the lowest-priority session to evict: lowest
// reputation score first, then the session with the oldest LastSeen.
func (cm *ConnManager) victimSession(sessions []*Session) *Session {
	if len(sessions) == 0 {
		return nil
	}
	now := time.Now()
	sort.Slice(sessions, func(i, j int) bool {
		si, sj := sessions[i], sessions[j]
		scoreI, scoreJ := 0, 0
		if cm.reputation != nil {
			scoreI = cm.reputation.Score(si.RemoteAddr(), now)
			scoreJ = cm.reputation.Score(sj.RemoteAddr(), now)
		}
		if scoreI != scoreJ {
			return scoreI < scoreJ
		}
		return si.LastSeen().Before(sj.LastSeen())
	})
	return sessions[0]
}
