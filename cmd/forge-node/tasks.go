package main

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/forge/pkg/id"
)

// SendWelcomeEmailPayload is the job payload dispatched after a user
// finishes onboarding.
type SendWelcomeEmailPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// sendWelcomeEmailTask is a jobqueue.WithTask handler: Name identifies
// the task type rows are claimed under, Handle does the work.
type sendWelcomeEmailTask struct {
	pool *pgxpool.Pool
}

func (t sendWelcomeEmailTask) Name() string { return "send_welcome_email" }

func (t sendWelcomeEmailTask) Handle(ctx context.Context, p SendWelcomeEmailPayload) error {
	payload, err := json.Marshal(map[string]string{"user_id": p.UserID, "email": p.Email})
	if err != nil {
		return err
	}
	_, err = t.pool.Exec(ctx,
		`INSERT INTO demo_events (id, kind, payload) VALUES ($1, $2, $3)`,
		id.New(), "welcome_email_sent", payload)
	return err
}
