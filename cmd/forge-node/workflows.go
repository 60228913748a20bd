package main

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/forge/pkg/id"
	"github.com/dmitrymomot/forge/pkg/workflow"
)

// onboardUserInput is the input to the onboard_user workflow.
type onboardUserInput struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// newOnboardUserWorkflow returns the onboard_user workflow function,
// closed over pool so its steps can journal a demo row without
// reaching back into the App. Each wctx.Step call runs at most once
// per run id; a crash between steps resumes at the next uncompleted
// one rather than repeating "record_signup".
func newOnboardUserWorkflow(pool *pgxpool.Pool) workflow.Func {
	return func(wctx *workflow.Ctx, input json.RawMessage) (json.RawMessage, error) {
		var in onboardUserInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}

		_, err := wctx.Step("record_signup", func(ctx context.Context) (json.RawMessage, error) {
			payload, err := json.Marshal(in)
			if err != nil {
				return nil, err
			}
			_, err = pool.Exec(ctx,
				`INSERT INTO demo_events (id, kind, payload) VALUES ($1, $2, $3)`,
				id.New(), "user_onboarded", payload)
			return nil, err
		})
		if err != nil {
			return nil, err
		}

		result, err := wctx.Step("welcome_email_dispatched", func(ctx context.Context) (json.RawMessage, error) {
			return json.Marshal(map[string]string{"status": "dispatched"})
		})
		if err != nil {
			return nil, err
		}

		return result, nil
	}
}
