package cron

import "errors"

var (
	ErrUnknownCron    = errors.New("cron: unknown cron name")
	ErrAlreadyExists  = errors.New("cron: name already registered")
	ErrPoolRequired   = errors.New("cron: pool is required")
	ErrAlreadyStarted = errors.New("cron: already started")
)
