package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Keldarne/cirque-app-sub003/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load()

			convey.Convey("Then the defaults are returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.HTTP.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Database.Driver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.Progression.Decay, convey.ShouldResemble, config.DecayDays{FragileDays: 14, StaleDays: 45, ForgottenDays: 120})
				convey.So(cfg.Progression.WeeklyWindow, convey.ShouldEqual, 7*24*time.Hour)
				convey.So(cfg.Progression.LeaderboardDefaultLimit, convey.ShouldEqual, 20)
				convey.So(cfg.Progression.LeaderboardMaxLimit, convey.ShouldEqual, 100)
				convey.So(cfg.Redis.Enabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When nested env vars are set", func() {
			t.Setenv("CIRQUE_DATABASE__DRIVER", "postgres")
			t.Setenv("CIRQUE_DATABASE__URL", "postgres://cirque@localhost:5432/cirque")
			t.Setenv("CIRQUE_DATABASE__MAX_CONNS", "7")
			t.Setenv("CIRQUE_REDIS__ENABLED", "true")
			t.Setenv("CIRQUE_REDIS__LEADERBOARD_TTL", "90s")
			t.Setenv("CIRQUE_PROGRESSION__DECAY__FRAGILE_DAYS", "10")

			cfg, err := config.Load()

			convey.Convey("Then they override the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Database.Driver, convey.ShouldEqual, config.DriverPostgres)
				convey.So(cfg.Database.URL, convey.ShouldEqual, "postgres://cirque@localhost:5432/cirque")
				convey.So(cfg.Database.MaxConns, convey.ShouldEqual, 7)
				convey.So(cfg.Redis.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Redis.LeaderboardTTL, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.Progression.Decay.FragileDays, convey.ShouldEqual, 10)
				convey.So(cfg.Progression.Decay.StaleDays, convey.ShouldEqual, 45)
			})
		})

		convey.Convey("When a YAML file is provided", func() {
			path := writeConfigFile(t, `
http:
  addr: ":9090"
progression:
  weekly_window: 72h
  discipline_decay:
    "3":
      fragile_days: 7
      stale_days: 21
      forgotten_days: 60
observability:
  metrics_namespace: circus
  latency_buckets: [0.005, 0.05, 0.5]
`)
			t.Setenv("CIRQUE_CONFIG", path)
			t.Setenv("CIRQUE_HTTP__ADDR", ":7070")

			cfg, err := config.Load()

			convey.Convey("Then file values apply and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.HTTP.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Progression.WeeklyWindow, convey.ShouldEqual, 72*time.Hour)
				convey.So(cfg.Progression.DisciplineDecay["3"], convey.ShouldResemble, config.DecayDays{FragileDays: 7, StaleDays: 21, ForgottenDays: 60})
				convey.So(cfg.Observability.MetricsNamespace, convey.ShouldEqual, "circus")
				convey.So(cfg.Observability.MetricsSubsystem, convey.ShouldEqual, "progression")
				convey.So(cfg.Observability.LatencyBuckets, convey.ShouldResemble, []float64{0.005, 0.05, 0.5})
			})
		})

		convey.Convey("When decay thresholds are not increasing", func() {
			t.Setenv("CIRQUE_PROGRESSION__DECAY__STALE_DAYS", "10")

			_, err := config.Load()

			convey.Convey("Then validation fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "progression.decay")
			})
		})

		convey.Convey("When postgres is selected without a URL", func() {
			t.Setenv("CIRQUE_DATABASE__DRIVER", "postgres")

			_, err := config.Load()

			convey.Convey("Then validation reports the missing URL", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "database.url is required")
			})
		})
	})
}

func TestValidateCollectsAllErrors(t *testing.T) {
	convey.Convey("Given an invalid config", t, func() {
		cfg := config.Default()
		cfg.Database.Driver = "mysql"
		cfg.Progression.LeaderboardDefaultLimit = 500
		cfg.Observability.LatencyBuckets = []float64{0.1, 0.1}

		err := cfg.Validate()

		convey.Convey("Then every problem is listed", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(strings.Count(err.Error(), "\n  - "), convey.ShouldEqual, 3)
			convey.So(err.Error(), convey.ShouldContainSubstring, "observability.latency_buckets")
		})
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cirque.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix) {
			_ = os.Unsetenv(strings.SplitN(kv, "=", 2)[0])
		}
	}
}
