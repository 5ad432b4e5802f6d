package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"txadmin/internal/config"
	"txadmin/internal/log"
)

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"}, log.ComponentWorker)
	assert.Equal(t, log.ComponentWorker, logger.Component())
}

func TestLoadConfigPassesValidConfig(t *testing.T) {
	t.Setenv("PORT", "9191")
	called := false
	cfg, logger := LoadConfig(log.ComponentApp, func(c *config.Config) error {
		called = true
		return nil
	})
	assert.True(t, called)
	assert.Equal(t, "9191", cfg.Port)
	assert.NotNil(t, logger)
}
