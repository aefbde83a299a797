package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := FromViper(v)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, time.Minute, cfg.Scheduler.Tick)
	assert.Equal(t, 4, cfg.Scheduler.Concurrency)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.StaleAfter)
	assert.Equal(t, 10*time.Second, cfg.Validator.Timeout)
	assert.Empty(t, cfg.Queue.AMQPURL)
	assert.Equal(t, "postgres://postgres:@localhost:5432/campaigns?sslmode=disable", cfg.Database.DSN())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SCHEDULER_TICK", "30s")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("VALIDATOR_RATE", "2.5")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Tick)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.DSN())
	assert.Equal(t, 2.5, cfg.Validator.RatePerSecond)
}

func TestValidateRejectsBadScheduler(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("scheduler_concurrency", 0)

	err := FromViper(v).Validate()
	assert.ErrorContains(t, err, "concurrency")
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	AppConfig{LogLevel: "warn"}.ConfigureLogging()
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	AppConfig{LogLevel: "warn", Debug: true}.ConfigureLogging()
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}
