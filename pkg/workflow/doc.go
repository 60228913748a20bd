// Package workflow implements FORGE's durable workflow engine
// (spec.md §4.6-4.7): versioned, resumable workflows whose steps
// replay deterministically from a journal instead of being re-run.
//
// A workflow is a plain function over a *Ctx:
//
//	func Onboard(wctx *workflow.Ctx, input json.RawMessage) (json.RawMessage, error) {
//	    if _, err := wctx.Step("validate", validateUser); err != nil {
//	        return nil, err
//	    }
//	    if err := wctx.Sleep(200 * time.Millisecond); err != nil {
//	        return nil, err
//	    }
//	    payload, err := wctx.WaitForEvent("verified", time.Hour)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return wctx.Step("finalize", func(ctx context.Context) (json.RawMessage, error) {
//	        return finalize(ctx, payload)
//	    })
//	}
//
// Every effectful call is journaled: Step, Sleep and WaitForEvent each
// check a persisted record before doing any work. On a cold run the
// record is absent, so the call executes for real and persists its
// outcome. On resume, the function body runs again from the top, and
// every previously-completed call returns its cached result without
// invoking anything — "journal-check-then-execute" is the only
// primitive; no coroutine machinery is required (spec.md §9).
//
// Sleep and WaitForEvent suspend the run by writing a wake condition
// to workflow_runs and returning a sentinel error that unwinds the
// workflow function without marking it failed; pkg/workflow's
// scheduler half (Scheduler) wakes suspended runs once their
// condition is satisfied.
package workflow
