package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds store round trips made while serving a request.
	DefaultTimeout = 10 * time.Second

	// ShortTimeout bounds cache round trips such as the rate limiter.
	ShortTimeout = 2 * time.Second
)

func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
