package reactor

// TrackingMode controls how precisely a ReadSet records what a query
// touched. Adaptive lets AdaptiveTracker choose per table based on
// subscription volume.
type TrackingMode string

const (
	TrackingNone     TrackingMode = "none"
	TrackingTable    TrackingMode = "table"
	TrackingRow      TrackingMode = "row"
	TrackingAdaptive TrackingMode = "adaptive"
)

// ReadSet records the tables and, optionally, specific rows a query
// read, so a later Change can be matched against it without
// re-running the query.
type ReadSet struct {
	Tables        map[string]struct{}
	Rows          map[string]map[string]struct{} // table -> row IDs
	FilterColumns map[string]map[string]struct{} // table -> column names
	Mode          TrackingMode
}

// NewReadSet returns an empty table-mode read set.
func NewReadSet() *ReadSet {
	return &ReadSet{
		Tables:        make(map[string]struct{}),
		Rows:          make(map[string]map[string]struct{}),
		FilterColumns: make(map[string]map[string]struct{}),
		Mode:          TrackingTable,
	}
}

// RowLevelReadSet returns an empty row-mode read set.
func RowLevelReadSet() *ReadSet {
	rs := NewReadSet()
	rs.Mode = TrackingRow
	return rs
}

func (rs *ReadSet) AddTable(table string) {
	rs.Tables[table] = struct{}{}
}

func (rs *ReadSet) AddRow(table, rowID string) {
	rs.Tables[table] = struct{}{}
	if rs.Rows[table] == nil {
		rs.Rows[table] = make(map[string]struct{})
	}
	rs.Rows[table][rowID] = struct{}{}
}

func (rs *ReadSet) AddFilterColumn(table, column string) {
	if rs.FilterColumns[table] == nil {
		rs.FilterColumns[table] = make(map[string]struct{})
	}
	rs.FilterColumns[table][column] = struct{}{}
}

func (rs *ReadSet) IncludesTable(table string) bool {
	_, ok := rs.Tables[table]
	return ok
}

// IncludesRow reports whether rowID in table is covered by this read
// set. A table tracked at table granularity covers every row; a table
// with no specific rows recorded (but present) also covers every row,
// matching the conservative default in readset.rs.
func (rs *ReadSet) IncludesRow(table, rowID string) bool {
	if !rs.IncludesTable(table) {
		return false
	}
	if rs.Mode == TrackingTable {
		return true
	}
	rows, ok := rs.Rows[table]
	if !ok {
		return true
	}
	_, found := rows[rowID]
	return found
}

func (rs *ReadSet) RowCount() int {
	n := 0
	for _, rows := range rs.Rows {
		n += len(rows)
	}
	return n
}

// Merge folds other into rs in place.
func (rs *ReadSet) Merge(other *ReadSet) {
	for t := range other.Tables {
		rs.Tables[t] = struct{}{}
	}
	for t, rows := range other.Rows {
		if rs.Rows[t] == nil {
			rs.Rows[t] = make(map[string]struct{})
		}
		for r := range rows {
			rs.Rows[t][r] = struct{}{}
		}
	}
	for t, cols := range other.FilterColumns {
		if rs.FilterColumns[t] == nil {
			rs.FilterColumns[t] = make(map[string]struct{})
		}
		for c := range cols {
			rs.FilterColumns[t][c] = struct{}{}
		}
	}
}

// ChangeOp is the write operation behind a Change.
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// Change is a single row-level mutation delivered over forge_changes.
type Change struct {
	Table          string
	Op             ChangeOp
	RowID          string
	ChangedColumns []string
}

// Invalidates reports whether change should invalidate a subscription
// holding rs. Row-level tracking only invalidates on a write to a
// tracked row (inserts are conservatively treated as always relevant,
// since a new row might newly match an unindexed filter); every other
// case invalidates whenever the table is in scope at all.
func (c Change) Invalidates(rs *ReadSet) bool {
	if !rs.IncludesTable(c.Table) {
		return false
	}
	if rs.Mode == TrackingRow && c.RowID != "" {
		switch c.Op {
		case OpUpdate, OpDelete:
			return rs.IncludesRow(c.Table, c.RowID)
		case OpInsert:
			// fall through to conservative true
		}
	}
	return true
}
