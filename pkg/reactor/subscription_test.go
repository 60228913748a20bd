package reactor

import "testing"

func TestRegistry_SubscribeAndFindAffected(t *testing.T) {
	reg := NewRegistry()
	sub := reg.Subscribe("session-1", "list_projects", nil)

	rs := NewReadSet()
	rs.AddTable("projects")
	reg.RecordExecution(sub.ID, rs)

	hit := Change{Table: "projects", Op: OpInsert}
	affected := reg.FindAffected(hit)
	if len(affected) != 1 || affected[0].ID != sub.ID {
		t.Fatalf("expected subscription to be affected, got %v", affected)
	}

	miss := Change{Table: "users", Op: OpInsert}
	if len(reg.FindAffected(miss)) != 0 {
		t.Fatal("expected no subscriptions affected by unrelated table")
	}
}

func TestRegistry_JobAndWorkflowLookup(t *testing.T) {
	reg := NewRegistry()
	jobSub := reg.SubscribeJob("session-1", "job-1")
	wfSub := reg.SubscribeWorkflow("session-1", "run-1")

	if got := reg.SubscriptionsForJob("job-1"); len(got) != 1 || got[0].ID != jobSub.ID {
		t.Fatalf("expected job subscription lookup, got %v", got)
	}
	if got := reg.SubscriptionsForWorkflow("run-1"); len(got) != 1 || got[0].ID != wfSub.ID {
		t.Fatalf("expected workflow subscription lookup, got %v", got)
	}
}

func TestRegistry_RemoveSession(t *testing.T) {
	reg := NewRegistry()
	sub := reg.Subscribe("session-1", "list_projects", nil)
	reg.SubscribeJob("session-1", "job-1")

	removed := reg.RemoveSession("session-1")
	if len(removed) != 2 {
		t.Fatalf("expected 2 subscriptions removed, got %d", len(removed))
	}
	if _, ok := reg.Get(sub.ID); ok {
		t.Fatal("expected subscription to be gone after session removal")
	}
	if len(reg.SubscriptionsForJob("job-1")) != 0 {
		t.Fatal("expected job index cleared after session removal")
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	reg := NewRegistry()
	sub := reg.Subscribe("session-1", "list_projects", nil)
	reg.Unsubscribe(sub.ID)

	if _, ok := reg.Get(sub.ID); ok {
		t.Fatal("expected subscription removed")
	}
}
