package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/lastcall/internal/config"
	"github.com/okian/lastcall/internal/domain/resolve"
	"github.com/okian/lastcall/internal/domain/scoring"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DSN, convey.ShouldEqual, "lastcall.db")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			convey.So(cfg.MinParticipants, convey.ShouldEqual, 3)
			convey.So(cfg.Tiers, convey.ShouldResemble, []float64{0.75, 0.25})
			convey.So(cfg.MinWager, convey.ShouldEqual, 10)
			convey.So(cfg.MaxWager, convey.ShouldEqual, 100)
		})

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Engine(t *testing.T) {
	convey.Convey("Given a config with engine settings", t, func() {
		cfg := config.New(context.Background())
		cfg.Mode = "per_submarket"
		cfg.GateScope = "per_submarket"
		cfg.StakeWeight = "sqrt"
		cfg.Tiers = []float64{0.5, 0.3, 0.2}
		cfg.MinParticipants = 2

		convey.Convey("When converting to an engine config", func() {
			ec, err := cfg.Engine()

			convey.Convey("Then every field should carry over", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ec.Mode, convey.ShouldEqual, resolve.PerSubmarket)
				convey.So(ec.GateScope, convey.ShouldEqual, resolve.GatePerSubmarket)
				convey.So(ec.StakeWeight, convey.ShouldEqual, scoring.SquareRoot)
				convey.So(ec.Tiers, convey.ShouldResemble, []float64{0.5, 0.3, 0.2})
				convey.So(ec.MinParticipants, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When tiers sum above one", func() {
			cfg.Tiers = []float64{0.8, 0.4}
			_, err := cfg.Engine()

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid configs", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":      func(c *config.Config) { c.Addr = "" },
			"bad mode":        func(c *config.Config) { c.Mode = "pooled" },
			"bad log format":  func(c *config.Config) { c.LogFormat = "xml" },
			"zero workers":    func(c *config.Config) { c.WorkerCount = 0 },
			"inverted wagers": func(c *config.Config) { c.MinWager, c.MaxWager = 50, 20 },
			"short secret":    func(c *config.Config) { c.AdminSecret = "abc" },
			"empty tiers":     func(c *config.Config) { c.Tiers = nil },
			"negative alpha":  func(c *config.Config) { c.Alpha = -1 },
			"bad namespace":   func(c *config.Config) { c.MetricsNamespace = "last-call" },
			"empty namespace": func(c *config.Config) { c.MetricsNamespace = "" },
			"unsorted buckets": func(c *config.Config) {
				c.MetricsBuckets = []float64{1, 10, 5}
			},
			"bad label name": func(c *config.Config) {
				c.MetricsLabels = map[string]string{"data center": "eu"}
			},
		}
		for name, mutate := range cases {
			convey.Convey("When "+name, func() {
				cfg := config.New(context.Background())
				mutate(cfg)

				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestConfig_Metrics(t *testing.T) {
	convey.Convey("Given a config with metrics settings", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsNamespace = "party"
		cfg.MetricsSubsystem = ""
		cfg.MetricsBuckets = []float64{1, 5, 25}
		cfg.MetricsLabels = map[string]string{"site": "eu"}

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then it should produce one option per setting", func() {
			convey.So(cfg.Metrics(), convey.ShouldHaveLength, 4)
		})
	})
}
