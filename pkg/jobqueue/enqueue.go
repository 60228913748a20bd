package jobqueue

import "time"

type enqueueConfig struct {
	scheduledAt        *time.Time
	idempotencyKey     string
	requiredCapability string
	maxAttempts        int
	priority           int
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueConfig)

// Priority sets the job's priority. Higher values are claimed first
// (claim orders by priority DESC). Defaults to 0.
func Priority(p int) EnqueueOption {
	return func(c *enqueueConfig) { c.priority = p }
}

// MaxAttempts caps retry attempts before the job moves to the dead
// letter state. Defaults to 5.
func MaxAttempts(n int) EnqueueOption {
	return func(c *enqueueConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// ScheduledAt delays the job until t.
func ScheduledAt(t time.Time) EnqueueOption {
	return func(c *enqueueConfig) { c.scheduledAt = &t }
}

// ScheduledIn delays the job by d from now.
func ScheduledIn(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		t := time.Now().Add(d)
		c.scheduledAt = &t
	}
}

// RequiredCapability restricts claiming to workers advertising this
// capability (spec.md §4.4).
func RequiredCapability(capability string) EnqueueOption {
	return func(c *enqueueConfig) { c.requiredCapability = capability }
}

// IdempotencyKey deduplicates enqueue calls: while a job with the same
// key is non-terminal, Enqueue returns its existing id instead of
// inserting a new row.
func IdempotencyKey(key string) EnqueueOption {
	return func(c *enqueueConfig) { c.idempotencyKey = key }
}
