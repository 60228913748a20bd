package cluster

import "testing"

func TestRoleLockID_Deterministic(t *testing.T) {
	a := roleLockID("cron-scheduler")
	b := roleLockID("cron-scheduler")
	if a != b {
		t.Fatalf("roleLockID not deterministic: %d != %d", a, b)
	}
}

func TestRoleLockID_DistinctPerRole(t *testing.T) {
	a := roleLockID("cron-scheduler")
	b := roleLockID("workflow-scheduler")
	if a == b {
		t.Fatalf("roleLockID collided for distinct roles: %d", a)
	}
}

func TestElector_IsLeaderDefaultsFalse(t *testing.T) {
	e := &Elector{}
	if e.IsLeader() {
		t.Fatal("fresh elector should not report leadership")
	}
}
