package jobqueue

import "errors"

var (
	// ErrUnknownTask is returned when enqueueing or dispatching a task
	// name that has no registered handler.
	ErrUnknownTask = errors.New("jobqueue: unknown task")

	// ErrInvalidPayload is returned when a job payload cannot be
	// unmarshaled into the handler's expected type.
	ErrInvalidPayload = errors.New("jobqueue: invalid payload")

	// ErrAlreadyStarted is returned when Run is called on a queue
	// that is already processing.
	ErrAlreadyStarted = errors.New("jobqueue: already started")

	// ErrNotStarted is returned when Stop is called on a queue that
	// was never started.
	ErrNotStarted = errors.New("jobqueue: not started")

	// ErrPoolRequired is returned when constructing a queue without a
	// database pool.
	ErrPoolRequired = errors.New("jobqueue: pool is required")

	// ErrJobNotFound is returned by Progress/Get when the job id
	// does not exist.
	ErrJobNotFound = errors.New("jobqueue: job not found")

	// ErrJobNotCancelable is returned by Cancel when no pending,
	// claimed or running job has the id: it has already reached a
	// terminal status, or it does not exist.
	ErrJobNotCancelable = errors.New("jobqueue: job not cancelable")
)
