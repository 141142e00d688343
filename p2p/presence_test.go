package p2p

import (
	"testing"
	"time"
)

func TestPresenceTrackerMarkSeenAndIsOnline(t *testing.T) {
	p := NewPresenceTracker(nil)
	if p.IsOnline("nA") {
		t.Fatal("unknown node must not be online")
	}
	p.markSeen([]string{"nA"})
	if !p.IsOnline("nA") {
		t.Fatal("expected nA to be online after markSeen")
	}
}

func TestPresenceTrackerSweepDropsStaleEntries(t *testing.T) {
	p := NewPresenceTracker(nil)
	p.onlineWindow = time.Millisecond
	p.mu.Lock()
	p.online["nA"] = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	p.sweep()
	if p.IsOnline("nA") {
		t.Fatal("expected stale entry to be swept")
	}
}

func TestPresenceTrackerOnChangeFiresOnTransitions(t *testing.T) {
	p := NewPresenceTracker(nil)
	var events []string
	p.OnChange(func(nodeID string, isOnline bool) {
		if isOnline {
			events = append(events, nodeID+":online")
		} else {
			events = append(events, nodeID+":offline")
		}
	})

	p.markSeen([]string{"nA"})
	p.onlineWindow = time.Millisecond
	p.mu.Lock()
	p.online["nA"] = time.Now().Add(-time.Hour)
	p.mu.Unlock()
	p.sweep()

	if len(events) != 2 || events[0] != "nA:online" || events[1] != "nA:offline" {
		t.Fatalf("events = %v, want [nA:online nA:offline]", events)
	}
}

func TestPresenceTrackerOnlineNodes(t *testing.T) {
	p := NewPresenceTracker(nil)
	p.markSeen([]string{"nA", "nB"})
	nodes := p.OnlineNodes()
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}
}
