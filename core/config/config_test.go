package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobflow/core/config"
)

type workerTestConfig struct {
	PollInterval time.Duration `env:"TEST_POLL_INTERVAL" envDefault:"5s"`
	MaxAttempts  int           `env:"TEST_MAX_ATTEMPTS" envDefault:"3"`
	QueueNames   []string      `env:"TEST_QUEUE_NAMES" envDefault:"default" envSeparator:","`
}

type requiredTestConfig struct {
	Token string `env:"TEST_REQUIRED_TOKEN_UNSET,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		var cfg workerTestConfig
		require.NoError(t, config.Load(&cfg))

		assert.Equal(t, 5*time.Second, cfg.PollInterval)
		assert.Equal(t, 3, cfg.MaxAttempts)
		assert.Equal(t, []string{"default"}, cfg.QueueNames)
	})

	t.Run("environment overrides default", func(t *testing.T) {
		t.Setenv("TEST_OVERRIDE_INTERVAL", "250ms")

		type overrideConfig struct {
			Interval time.Duration `env:"TEST_OVERRIDE_INTERVAL" envDefault:"5s"`
		}
		var cfg overrideConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	})

	t.Run("cached per type", func(t *testing.T) {
		var first, second workerTestConfig
		require.NoError(t, config.Load(&first))
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first, second)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg requiredTestConfig
		err := config.Load(&cfg)
		assert.Error(t, err)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on missing required variable", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg requiredTestConfig
			config.MustLoad(&cfg)
		})
	})

	t.Run("returns loaded config", func(t *testing.T) {
		var cfg workerTestConfig
		assert.NotPanics(t, func() { config.MustLoad(&cfg) })
		assert.Equal(t, 3, cfg.MaxAttempts)
	})
}
