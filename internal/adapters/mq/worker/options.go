package worker

import (
	"context"

	"github.com/okian/lastcall/pkg/logger"
)

// FailureHandler is called when a job could not be settled.
type FailureHandler func(ctx context.Context, job Job, err error)

// Option applies a configuration option to a worker or a pool.
type Option func(*options)

type options struct {
	name      string
	logger    logger.Logger
	onFailure FailureHandler
}

func defaultOptions() options {
	return options{
		name:      "worker",
		logger:    logger.Nop(),
		onFailure: func(context.Context, Job, error) {},
	}
}

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFailureHandler registers a callback for failed jobs, e.g. to allow a
// retry by forgetting the job's dedupe key.
func WithFailureHandler(h FailureHandler) Option {
	return func(o *options) {
		if h != nil {
			o.onFailure = h
		}
	}
}
