// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/okian/lastcall/internal/domain/payout"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/scoring"
	"github.com/okian/lastcall/pkg/metrics"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`
	// DSN is the SQLite database path; ":memory:" for an ephemeral store.
	DSN string `koanf:"dsn" validate:"required"`
	// AdminSecret guards the resolve endpoint. Empty disables it.
	AdminSecret string `koanf:"admin_secret" validate:"omitempty,min=8"`

	QueueSize   int `koanf:"queue_size" validate:"gt=0"`
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`
	DedupeSize  int `koanf:"dedupe_size" validate:"gte=0"`

	// Engine settings.
	MinParticipants int       `koanf:"min_participants" validate:"gte=0"`
	Mode            string    `koanf:"mode" validate:"oneof=single_pool per_submarket"`
	GateScope       string    `koanf:"gate_scope" validate:"oneof=global per_submarket"`
	Tiers           []float64 `koanf:"tiers" validate:"required,min=1,dive,gte=0,lte=1"`
	WindowDays      int       `koanf:"window_days" validate:"gt=0"`
	Alpha           float64   `koanf:"alpha" validate:"gte=0"`
	StakeWeight     string    `koanf:"stake_weight" validate:"oneof=linear sqrt"`

	// Wager bounds, inclusive.
	MinWager int `koanf:"min_wager" validate:"gt=0"`
	MaxWager int `koanf:"max_wager" validate:"gtefield=MinWager"`

	// Token bucket for write routes. RateLimitRPS 0 disables limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=1"`

	// Prometheus naming. Empty MetricsBuckets keeps the client defaults.
	MetricsNamespace string            `koanf:"metrics_namespace" validate:"required,metric_name"`
	MetricsSubsystem string            `koanf:"metrics_subsystem" validate:"omitempty,metric_name"`
	MetricsBuckets   []float64         `koanf:"metrics_buckets" validate:"omitempty,dive,gt=0"`
	MetricsLabels    map[string]string `koanf:"metrics_labels" validate:"omitempty,dive,keys,metric_name,endkeys,required"`
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New returns a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		DSN:             "lastcall.db",
		QueueSize:       1024,
		WorkerCount:     4,
		DedupeSize:      50_000,
		MinParticipants: resolve.DefaultMinParticipants,
		Mode:            "single_pool",
		GateScope:       "global",
		Tiers:           append([]float64(nil), payout.DefaultFractions...),
		WindowDays:      scoring.DefaultWindowDays,
		Alpha:           scoring.DefaultAlpha,
		StakeWeight:     "linear",
		MinWager:        10,
		MaxWager:        100,
		RateLimitRPS:    5,
		RateLimitBurst:  10,

		MetricsNamespace: "lastcall",
		MetricsSubsystem: "pool",
	}
}

// Validate checks field constraints and that the engine settings build a
// valid engine.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("metric_name", func(fl validator.FieldLevel) bool {
		return metricName.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			return fmt.Errorf("%w: metrics_buckets must increase", ErrInvalidConfig)
		}
	}
	if _, err := c.Engine(); err != nil {
		return err
	}
	return nil
}

// Engine converts the engine settings to a resolve.Config and validates it.
func (c *Config) Engine() (resolve.Config, error) {
	mode, err := resolve.ParseMode(c.Mode)
	if err != nil {
		return resolve.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	scope, err := resolve.ParseGateScope(c.GateScope)
	if err != nil {
		return resolve.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	weight, err := scoring.ParseStakeWeight(c.StakeWeight)
	if err != nil {
		return resolve.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := resolve.Config{
		MinParticipants: c.MinParticipants,
		Mode:            mode,
		GateScope:       scope,
		Tiers:           append([]float64(nil), c.Tiers...),
		WindowDays:      c.WindowDays,
		Alpha:           c.Alpha,
		StakeWeight:     weight,
	}
	if err := cfg.Validate(); err != nil {
		return resolve.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Metrics returns the metrics options for these settings.
func (c *Config) Metrics() []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithSubsystem(c.MetricsSubsystem),
		metrics.WithHistogramBuckets(c.MetricsBuckets),
		metrics.WithConstLabels(c.MetricsLabels),
	}
}
