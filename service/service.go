package service

import "context"

// Service is a long-lived task of the node. Run blocks until ctx is cancelled or the service fails.
type Service interface {
	Run(ctx context.Context) error
}

// Func turns a function into a Service.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}
