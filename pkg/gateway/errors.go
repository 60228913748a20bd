package gateway

import "errors"

var (
	ErrPoolRequired    = errors.New("gateway: pool is required")
	ErrAlreadyStarted  = errors.New("gateway: hub already started")
	ErrUnknownFunction = errors.New("gateway: unknown function")
)
