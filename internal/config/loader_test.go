package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/ronbun/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.Scorer, convey.ShouldEqual, "heuristic")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("RONBUN_ADDR", ":8080")
			t.Setenv("RONBUN_QUEUE_SIZE", "500")
			t.Setenv("RONBUN_WORKER_COUNT", "3")
			t.Setenv("RONBUN_SCORER", "llm")
			t.Setenv("RONBUN_LLM_API_KEY", "sk-env")
			t.Setenv("RONBUN_LLM_RATE_PER_SEC", "0.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.Scorer, convey.ShouldEqual, "llm")
				convey.So(cfg.LLMAPIKey, convey.ShouldEqual, "sk-env")
				convey.So(cfg.LLMRatePerSec, convey.ShouldEqual, 0.5)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
queue_size: 300
store_driver: sqlite
sqlite_path: /tmp/ronbun-test.db
log_format: json
`)
			t.Setenv("RONBUN_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/ronbun-test.db")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})

			convey.Convey("And env vars should take precedence over the file", func() {
				t.Setenv("RONBUN_ADDR", ":7070")

				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			t.Setenv("RONBUN_CONFIG", "/nonexistent/ronbun.yaml")

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the loaded values fail validation", func() {
			t.Setenv("RONBUN_SCORER", "llm")

			_, err := config.Load(ctx)

			convey.Convey("Then it should return an invalid config error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RONBUN_CONFIG", "RONBUN_ADDR", "RONBUN_QUEUE_SIZE", "RONBUN_WORKER_COUNT",
		"RONBUN_SCORER", "RONBUN_LLM_API_KEY", "RONBUN_LLM_RATE_PER_SEC",
		"RONBUN_STORE_DRIVER", "RONBUN_SQLITE_PATH",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "ronbun-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpFile.Name()
}
