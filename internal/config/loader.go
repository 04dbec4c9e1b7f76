package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	EnvPrefix  = "LASTCALL_"
	EnvConfig  = EnvPrefix + "CONFIG"
	EnvDotFile = EnvPrefix + "ENV_FILE"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if LASTCALL_CONFIG is set
//  3. env (prefix LASTCALL_), after loading .env (or LASTCALL_ENV_FILE)
//     without overriding variables that are already set
func Load(ctx context.Context) (*Config, error) {
	loadDotEnv()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LASTCALL_QUEUE_SIZE -> queue_size (flat keys)
	envProvider := env.ProviderWithValue(EnvPrefix, ".", envValue)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *New(ctx)
	if k.Exists("tiers") {
		// replace the default schedule instead of merging into it
		cfg.Tiers = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envValue maps LASTCALL_TIERS=0.6,0.3 to tiers: ["0.6", "0.3"]. Keys
// other than tiers and metrics_buckets pass through unchanged.
func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key != "tiers" && key != "metrics_buckets" {
		return key, value
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return key, out
}

// loadDotEnv loads .env files into the process environment. A missing file
// is not an error.
func loadDotEnv() {
	if path := os.Getenv(EnvDotFile); path != "" {
		_ = godotenv.Load(path)
		return
	}
	_ = godotenv.Load()
}
