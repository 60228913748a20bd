package cluster

import "errors"

var (
	ErrPoolRequired   = errors.New("cluster: pool is required")
	ErrNotRegistered  = errors.New("cluster: node not registered")
	ErrAlreadyStarted = errors.New("cluster: already started")
)
