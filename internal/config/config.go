package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Validator ValidatorConfig
}

type AppConfig struct {
	Port      string
	Debug     bool
	LogLevel  string
	LogFormat string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type QueueConfig struct {
	// AMQPURL empty selects the in-memory queue.
	AMQPURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SchedulerConfig struct {
	Tick        time.Duration
	Concurrency int
	BatchSize   int
	LockTTL     time.Duration
	// StaleAfter is how long an execution may wait for its completion
	// before the scheduler closes it. Zero disables the sweep.
	StaleAfter  time.Duration
}

type ValidatorConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	StoreURI      string
	LogLevel      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "8080")
	v.SetDefault("app_debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_name", "campaigns")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("redis_db", 0)

	v.SetDefault("scheduler_tick", time.Minute)
	v.SetDefault("scheduler_concurrency", 4)
	v.SetDefault("scheduler_batch", 100)
	v.SetDefault("scheduler_lock_ttl", 10*time.Minute)
	v.SetDefault("scheduler_stale_after", 2*time.Hour)

	v.SetDefault("validator_timeout", 10*time.Second)
	v.SetDefault("validator_rate", 5.0)
	v.SetDefault("validator_burst", 5)
	v.SetDefault("whatsapp_log_level", "ERROR")
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		logrus.Debug("[CONFIG] No .env file found, relying on OS environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Port:      v.GetString("app_port"),
			Debug:     v.GetBool("app_debug"),
			LogLevel:  v.GetString("log_level"),
			LogFormat: v.GetString("log_format"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("database_url"),
			Host:     v.GetString("db_host"),
			Port:     v.GetInt("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
			SSLMode:  v.GetString("db_sslmode"),
		},
		Queue: QueueConfig{
			AMQPURL: v.GetString("amqp_url"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Scheduler: SchedulerConfig{
			Tick:        v.GetDuration("scheduler_tick"),
			Concurrency: v.GetInt("scheduler_concurrency"),
			BatchSize:   v.GetInt("scheduler_batch"),
			LockTTL:     v.GetDuration("scheduler_lock_ttl"),
			StaleAfter:  v.GetDuration("scheduler_stale_after"),
		},
		Validator: ValidatorConfig{
			Timeout:       v.GetDuration("validator_timeout"),
			RatePerSecond: v.GetFloat64("validator_rate"),
			Burst:         v.GetInt("validator_burst"),
			StoreURI:      v.GetString("whatsapp_store_uri"),
			LogLevel:      v.GetString("whatsapp_log_level"),
		},
	}
}

func (c *Config) Validate() error {
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler tick must be positive, got %s", c.Scheduler.Tick)
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler concurrency must be at least 1, got %d", c.Scheduler.Concurrency)
	}
	if c.Validator.Timeout <= 0 {
		return fmt.Errorf("validator timeout must be positive, got %s", c.Validator.Timeout)
	}
	return nil
}

// DSN builds the Postgres connection string. DATABASE_URL wins when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ConfigureLogging applies level and format to the global logrus logger.
func (a AppConfig) ConfigureLogging() {
	level, err := logrus.ParseLevel(strings.ToLower(a.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	if a.Debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(a.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
