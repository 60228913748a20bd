package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type demoEvent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// newListDemoEventsQuery returns a gateway.QueryFunc listing the most
// recent demo events. Registered against the "demo_events" table, so
// any INSERT into it re-executes this query for every subscriber
// (spec.md §5 reactive query invalidation).
func newListDemoEventsQuery(pool *pgxpool.Pool) func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		rows, err := pool.Query(ctx,
			`SELECT id, kind, payload, created_at FROM demo_events ORDER BY created_at DESC LIMIT 50`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		events := make([]demoEvent, 0, 50)
		for rows.Next() {
			var e demoEvent
			if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
				return nil, err
			}
			events = append(events, e)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		return json.Marshal(events)
	}
}
