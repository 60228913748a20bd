package reactor

import "testing"

func TestAdaptiveTracker_SwitchesToRowLevelForFewSubscriptions(t *testing.T) {
	tr := NewAdaptiveTracker(AdaptiveConfig{RowThreshold: 5, TableThreshold: 2, MaxTrackedRows: 100})

	tr.RecordSubscription("users", []string{"user-1"})

	if tr.Mode("users") != TrackingRow {
		t.Fatalf("expected row mode, got %s", tr.Mode("users"))
	}
	if !tr.ShouldInvalidate("users", "user-1") {
		t.Fatal("expected tracked row to invalidate")
	}
	if tr.ShouldInvalidate("users", "user-2") {
		t.Fatal("expected untracked row not to invalidate")
	}
}

func TestAdaptiveTracker_SwitchesToTableLevelUnderLoad(t *testing.T) {
	tr := NewAdaptiveTracker(AdaptiveConfig{RowThreshold: 3, TableThreshold: 1, MaxTrackedRows: 100})

	for i := 0; i < 5; i++ {
		tr.RecordSubscription("users", []string{string(rune('a' + i))})
	}

	if tr.Mode("users") != TrackingTable {
		t.Fatalf("expected table mode once row threshold exceeded, got %s", tr.Mode("users"))
	}
	if !tr.ShouldInvalidate("users", "anything") {
		t.Fatal("expected table mode to invalidate regardless of row id")
	}
}

func TestAdaptiveTracker_NoSubscriptionsMeansNone(t *testing.T) {
	tr := NewAdaptiveTracker(DefaultAdaptiveConfig())
	if tr.Mode("ghost") != TrackingNone {
		t.Fatalf("expected none mode for untouched table, got %s", tr.Mode("ghost"))
	}
	if tr.ShouldInvalidate("ghost", "row") {
		t.Fatal("expected no invalidation for untracked table")
	}
}

func TestAdaptiveTracker_RemoveSubscriptionReturnsToNone(t *testing.T) {
	tr := NewAdaptiveTracker(AdaptiveConfig{RowThreshold: 5, TableThreshold: 2, MaxTrackedRows: 100})
	tr.RecordSubscription("users", []string{"user-1"})
	tr.RemoveSubscription("users", []string{"user-1"})

	if tr.Mode("users") != TrackingNone {
		t.Fatalf("expected none mode after removing last subscription, got %s", tr.Mode("users"))
	}
}
