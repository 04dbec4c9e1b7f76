package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/lastcall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		// Point the dotenv loader at a file that does not exist so a stray
		// .env in the working directory cannot leak into the test.
		t.Setenv(config.EnvDotFile, filepath.Join(t.TempDir(), "missing.env"))
		// Each leaf reruns this block, so values set by a sibling are cleared.
		clearConfigEnv(t)

		convey.Convey("When loading config with no sources", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New(ctx))
			})
		})

		convey.Convey("When loading config from environment variables", func() {
			t.Setenv("LASTCALL_ADDR", ":8080")
			t.Setenv("LASTCALL_WORKER_COUNT", "8")
			t.Setenv("LASTCALL_MODE", "per_submarket")
			t.Setenv("LASTCALL_TIERS", "0.6,0.3,0.1")
			t.Setenv("LASTCALL_ALPHA", "1.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should use the environment values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.Mode, convey.ShouldEqual, "per_submarket")
				convey.So(cfg.Tiers, convey.ShouldResemble, []float64{0.6, 0.3, 0.1})
				convey.So(cfg.Alpha, convey.ShouldEqual, 1.5)
			})
		})

		convey.Convey("When tiers come from the environment with spaces", func() {
			t.Setenv("LASTCALL_TIERS", " 0.5, 0.3 ,0.2 ")

			cfg, err := config.Load(ctx)

			convey.Convey("Then every tier should be parsed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Tiers, convey.ShouldResemble, []float64{0.5, 0.3, 0.2})
			})
		})

		convey.Convey("When env tiers override a longer file schedule", func() {
			t.Setenv(config.EnvConfig, writeConfigFile(t, "tiers: [0.5, 0.3, 0.2]\n"))
			t.Setenv("LASTCALL_TIERS", "1")

			cfg, err := config.Load(ctx)

			convey.Convey("Then the env schedule should replace the file one", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Tiers, convey.ShouldResemble, []float64{1})
			})
		})

		convey.Convey("When metrics buckets come from the environment", func() {
			t.Setenv("LASTCALL_METRICS_BUCKETS", "1,10,100")
			t.Setenv("LASTCALL_METRICS_NAMESPACE", "party")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they should be parsed as a list", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsBuckets, convey.ShouldResemble, []float64{1, 10, 100})
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "party")
			})
		})

		convey.Convey("When env tiers are not numbers", func() {
			t.Setenv("LASTCALL_TIERS", "0.5,half")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfigFile(t, `
addr: ":9090"
queue_size: 64
worker_count: 2
min_wager: 5
max_wager: 50
`)
			t.Setenv(config.EnvConfig, path)
			t.Setenv("LASTCALL_WORKER_COUNT", "6")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 6)
				convey.So(cfg.MinWager, convey.ShouldEqual, 5)
				convey.So(cfg.MaxWager, convey.ShouldEqual, 50)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			})
		})

		convey.Convey("When loading config from a .env file", func() {
			dot := filepath.Join(t.TempDir(), "test.env")
			convey.So(os.WriteFile(dot, []byte("LASTCALL_ADMIN_SECRET=letmein-please\n"), 0o600), convey.ShouldBeNil)
			t.Setenv(config.EnvDotFile, dot)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should pick up the variables", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.AdminSecret, convey.ShouldEqual, "letmein-please")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			t.Setenv(config.EnvConfig, writeConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv(config.EnvConfig, "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("LASTCALL_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config that fails validation", func() {
			t.Setenv("LASTCALL_GATE_SCOPE", "everywhere")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvConfig,
		"LASTCALL_ADDR",
		"LASTCALL_ADMIN_SECRET",
		"LASTCALL_QUEUE_SIZE",
		"LASTCALL_WORKER_COUNT",
		"LASTCALL_MODE",
		"LASTCALL_GATE_SCOPE",
		"LASTCALL_TIERS",
		"LASTCALL_ALPHA",
		"LASTCALL_METRICS_BUCKETS",
		"LASTCALL_METRICS_NAMESPACE",
	} {
		t.Setenv(key, "") // registers restore on cleanup
		_ = os.Unsetenv(key)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lastcall.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
