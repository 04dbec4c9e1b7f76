package service

import (
	"time"

	"github.com/okian/lastcall/internal/adapters/repository"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of settlement workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the settlement queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the number of remembered request ids.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses an already opened store. The service does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.ownsStore = false
		}
	}
}

// WithDSN sets the SQLite database the service opens on Start.
func WithDSN(dsn string) Option {
	return func(s *Service) {
		if dsn != "" {
			s.dsn = dsn
		}
	}
}

// WithEngineConfig sets the scoring and payout configuration.
func WithEngineConfig(cfg resolve.Config) Option {
	return func(s *Service) {
		s.engineCfg = cfg
	}
}

// WithWagerRange bounds accepted stakes (inclusive).
func WithWagerRange(minWager, maxWager int) Option {
	return func(s *Service) {
		s.minWager = minWager
		s.maxWager = maxWager
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
