package cluster

import "testing"

func TestNewRegistry_RequiresPool(t *testing.T) {
	_, err := NewRegistry(nil, "node-1", "host", "addr", nil, nil)
	if err != ErrPoolRequired {
		t.Fatalf("expected ErrPoolRequired, got %v", err)
	}
}

func TestRegistry_PublishLoad(t *testing.T) {
	r := &Registry{metrics: newMetrics("node-1")}
	r.PublishLoad(LoadStats{Connections: 3, ActiveJobs: 7})
	if r.stats.Connections != 3 || r.stats.ActiveJobs != 7 {
		t.Fatalf("unexpected stats: %+v", r.stats)
	}
}
