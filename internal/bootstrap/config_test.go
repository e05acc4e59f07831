package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"collaborative-canvas/internal/infra/setup"
)

func TestParseConfig_Defaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := parseConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "cc:", cfg.KeyPrefix)
	assert.Equal(t, 60*time.Second, cfg.PresenceTimeout)
	assert.Equal(t, "@every 30s", cfg.PresenceSweepSchedule)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsProduction())

	opts := cfg.DBOptions()
	assert.Equal(t, setup.DriverSQLite, opts.Driver)
	assert.Equal(t, "canvas.db", opts.SQLitePath)
	assert.Equal(t, logger.Warn, opts.LogLevel)
}

func TestParseConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing redis", map[string]string{"DB_DRIVER": "sqlite"}},
		{"mysql without credentials", map[string]string{"REDIS_ADDR": "r:6379", "DB_DRIVER": "mysql"}},
		{"unknown driver", map[string]string{"REDIS_ADDR": "r:6379", "DB_DRIVER": "postgres"}},
		{"auth without secret", map[string]string{"REDIS_ADDR": "r:6379", "DB_DRIVER": "sqlite", "AUTH_ENABLED": "true"}},
		{"bad duration", map[string]string{"REDIS_ADDR": "r:6379", "DB_DRIVER": "sqlite", "PRESENCE_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_ADDR", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := parseConfig()
			assert.Error(t, err)
		})
	}
}

func TestParseConfig_InvalidLogLevelFallsBack(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "chatty")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := parseConfig()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}
