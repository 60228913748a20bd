package reactor

import "testing"

func TestReadSet_TableLevelInvalidation(t *testing.T) {
	rs := NewReadSet()
	rs.AddTable("projects")

	insert := Change{Table: "projects", Op: OpInsert}
	if !insert.Invalidates(rs) {
		t.Fatal("expected table-level change to invalidate")
	}

	unrelated := Change{Table: "users", Op: OpInsert}
	if unrelated.Invalidates(rs) {
		t.Fatal("expected unrelated table not to invalidate")
	}
}

func TestReadSet_RowLevelInvalidation(t *testing.T) {
	rs := RowLevelReadSet()
	rs.AddRow("projects", "row-1")

	update := Change{Table: "projects", Op: OpUpdate, RowID: "row-1"}
	if !update.Invalidates(rs) {
		t.Fatal("expected update to tracked row to invalidate")
	}

	other := Change{Table: "projects", Op: OpUpdate, RowID: "row-2"}
	if other.Invalidates(rs) {
		t.Fatal("expected update to untracked row not to invalidate")
	}

	insert := Change{Table: "projects", Op: OpInsert, RowID: "row-2"}
	if !insert.Invalidates(rs) {
		t.Fatal("expected insert to conservatively invalidate even for untracked row")
	}
}

func TestReadSet_Merge(t *testing.T) {
	a := NewReadSet()
	a.AddTable("projects")
	b := NewReadSet()
	b.AddTable("users")

	a.Merge(b)

	if !a.IncludesTable("projects") || !a.IncludesTable("users") {
		t.Fatal("expected merge to union tables")
	}
}
