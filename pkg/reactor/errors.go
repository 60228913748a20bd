package reactor

import "errors"

var (
	ErrPoolRequired        = errors.New("reactor: pool is required")
	ErrAlreadyStarted      = errors.New("reactor: already started")
	ErrUnknownSubscription = errors.New("reactor: unknown subscription")
	ErrUnknownQuery        = errors.New("reactor: query not registered")
)
