package reactor

import "sync"

// AdaptiveConfig tunes the row/table tracking hysteresis.
type AdaptiveConfig struct {
	// RowThreshold: above this many row subscriptions on a table,
	// switch to table-level tracking.
	RowThreshold int
	// TableThreshold: below this many row subscriptions, switch (or
	// stay) row-level. Between TableThreshold and RowThreshold the
	// current mode is kept, so a table doesn't flap on every
	// subscribe/unsubscribe near the boundary.
	TableThreshold int
	// MaxTrackedRows caps how many distinct row IDs are tracked per
	// table before further row subscriptions on it are ignored.
	MaxTrackedRows int
}

// DefaultAdaptiveConfig mirrors the original runtime's defaults.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{RowThreshold: 100, TableThreshold: 50, MaxTrackedRows: 10_000}
}

// AdaptiveTracker decides whether each table should be tracked at row
// or table granularity, based on how many subscriptions currently
// touch it.
type AdaptiveTracker struct {
	cfg AdaptiveConfig

	mu          sync.Mutex
	modes       map[string]TrackingMode
	trackedRows map[string]map[string]struct{}
	subCounts   map[string]int
	rowSubCount map[string]int
}

func NewAdaptiveTracker(cfg AdaptiveConfig) *AdaptiveTracker {
	return &AdaptiveTracker{
		cfg:         cfg,
		modes:       make(map[string]TrackingMode),
		trackedRows: make(map[string]map[string]struct{}),
		subCounts:   make(map[string]int),
		rowSubCount: make(map[string]int),
	}
}

// RecordSubscription registers a new subscription against table,
// optionally pinning specific row IDs, and re-evaluates its mode.
func (a *AdaptiveTracker) RecordSubscription(table string, rowIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.subCounts[table]++
	if len(rowIDs) > 0 {
		rows := a.trackedRows[table]
		if rows == nil {
			rows = make(map[string]struct{})
			a.trackedRows[table] = rows
		}
		for _, id := range rowIDs {
			if len(rows) >= a.cfg.MaxTrackedRows {
				break
			}
			if _, exists := rows[id]; !exists {
				rows[id] = struct{}{}
				a.rowSubCount[table]++
			}
		}
	}
	a.evaluateLocked(table)
}

// RemoveSubscription undoes a RecordSubscription for the same table
// and row IDs.
func (a *AdaptiveTracker) RemoveSubscription(table string, rowIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.subCounts[table] > 0 {
		a.subCounts[table]--
	}
	if rows, ok := a.trackedRows[table]; ok {
		for _, id := range rowIDs {
			if _, exists := rows[id]; exists {
				delete(rows, id)
				if a.rowSubCount[table] > 0 {
					a.rowSubCount[table]--
				}
			}
		}
	}
	a.evaluateLocked(table)
}

func (a *AdaptiveTracker) evaluateLocked(table string) {
	subCount := a.subCounts[table]
	rowCount := a.rowSubCount[table]

	var newMode TrackingMode
	switch {
	case subCount == 0:
		newMode = TrackingNone
	case rowCount > a.cfg.RowThreshold:
		newMode = TrackingTable
	case rowCount < a.cfg.TableThreshold:
		newMode = TrackingRow
	default:
		// Hysteresis band: keep whatever mode is already set.
		if existing, ok := a.modes[table]; ok {
			newMode = existing
		} else {
			newMode = TrackingRow
		}
	}
	a.modes[table] = newMode
}

// ShouldInvalidate reports whether a change to rowID in table should
// invalidate subscriptions, given the table's current tracking mode.
func (a *AdaptiveTracker) ShouldInvalidate(table, rowID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.modes[table] {
	case TrackingNone, "":
		return false
	case TrackingTable, TrackingAdaptive:
		return true
	case TrackingRow:
		// With no rows pinned, every row of the table is in scope.
		rows, ok := a.trackedRows[table]
		if !ok || len(rows) == 0 {
			return true
		}
		_, found := rows[rowID]
		return found
	default:
		return false
	}
}

// Mode returns the current tracking mode for table.
func (a *AdaptiveTracker) Mode(table string) TrackingMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.modes[table]; ok {
		return m
	}
	return TrackingNone
}
