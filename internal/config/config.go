// Package config loads runtime configuration from the environment.
//
// Every knob the process honors is declared here; nothing else in the
// codebase reads environment variables. The entrypoint decodes the
// environment exactly once and hands the resulting Config down to the
// role runtime.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full configuration for one storefront process, whatever
// role it is deployed as.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	CORS      CORSConfig
}

// AppConfig identifies the process and selects its role.
type AppConfig struct {
	// Role selects what this process runs: web, worker or beat. It has
	// no default; an unset role is a usage error surfaced by the
	// dispatcher, not a silent fallback.
	Role    string `env:"APP_ROLE"`
	Name    string `env:"APP_NAME,default=storefront"`
	Env     string `env:"APP_ENV,default=development"`
	Version string `env:"APP_VERSION,default=0.1.0"`
}

// ServerConfig configures the web role's HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST,default=0.0.0.0"`
	// Port is read from PORT to match the hosting environment's
	// contract for web processes.
	Port           int           `env:"PORT,default=8000"`
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT,default=30s"`
	// MaxInFlight bounds concurrently served requests, the counterpart
	// of a fixed-size request worker pool.
	MaxInFlight    int           `env:"SERVER_MAX_INFLIGHT,default=64"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT,default=60s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT,default=120s"`
	RateLimitRPS   int           `env:"SERVER_RATE_LIMIT_RPS,default=50"`
	RateLimitBurst int           `env:"SERVER_RATE_LIMIT_BURST,default=100"`
	// ShutdownTimeout caps graceful drain on SIGTERM.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=15s"`
	// AuthTokens is a comma list of static bearer tokens guarding the
	// mutating operational endpoints. Empty leaves them open.
	AuthTokens string `env:"OPS_AUTH_TOKENS"`
}

// Addr returns the host:port the HTTP server binds.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Tokens returns the configured bearer tokens, empty slice when unset.
func (c ServerConfig) Tokens() []string {
	return splitList(c.AuthTokens)
}

// DatabaseConfig configures the optional Postgres connection. An empty
// URL means the process runs without a database: the web role still
// serves, the migration step reports that migrations are absent.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=30"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=10"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
	// MigrationsDir is the file source the migration step applies from.
	MigrationsDir string `env:"DATABASE_MIGRATIONS_DIR,default=migrations"`
}

// Configured reports whether a database URL is present.
func (c DatabaseConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != ""
}

// RedisConfig configures the broker, result backend and cache. The
// cache lives on its own logical DB so flushing it never touches queued
// work.
type RedisConfig struct {
	URL       string        `env:"REDIS_URL,default=redis://localhost:6379/0"`
	CacheDB   int           `env:"REDIS_CACHE_DB,default=1"`
	CacheTTL  time.Duration `env:"CACHE_TTL,default=5m"`
	ResultTTL time.Duration `env:"RESULT_TTL,default=24h"`
}

// WorkerConfig configures the worker role's consumer pool.
type WorkerConfig struct {
	Queue        string        `env:"WORKER_QUEUE,default=default"`
	Concurrency  int           `env:"WORKER_CONCURRENCY,default=4"`
	TaskTimeout  time.Duration `env:"WORKER_TASK_TIMEOUT,default=5m"`
	MaxRetries   int           `env:"WORKER_MAX_RETRIES,default=3"`
	RetryBackoff time.Duration `env:"WORKER_RETRY_BACKOFF,default=10s"`
}

// SchedulerConfig configures the beat role.
type SchedulerConfig struct {
	// SchedulePath points at the YAML schedule. A missing file falls
	// back to the built-in default schedule.
	SchedulePath string `env:"SCHEDULE_PATH,default=config/schedule.yaml"`
}

// LoggingConfig mirrors pkg/logger's configuration surface.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=text"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX,default=storefront"`
}

// CORSConfig configures cross-origin access for the web role.
type CORSConfig struct {
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

// Origins returns the allowed origins as a list.
func (c CORSConfig) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Load decodes configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot run with. Role is
// not checked here; the dispatcher owns role validation, so an unknown
// role surfaces as a usage error rather than a config error.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: SERVER_REQUEST_TIMEOUT must be positive, got %s", c.Server.RequestTimeout)
	}
	if c.Server.MaxInFlight < 1 {
		return fmt.Errorf("config: SERVER_MAX_INFLIGHT must be at least 1, got %d", c.Server.MaxInFlight)
	}
	if c.Server.WriteTimeout > 0 && c.Server.RequestTimeout > c.Server.WriteTimeout {
		return fmt.Errorf("config: SERVER_REQUEST_TIMEOUT %s exceeds SERVER_WRITE_TIMEOUT %s", c.Server.RequestTimeout, c.Server.WriteTimeout)
	}
	if c.Server.RateLimitRPS < 1 || c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("config: rate limit rps and burst must be at least 1")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		return fmt.Errorf("config: REDIS_URL must not be empty")
	}
	if c.Redis.CacheDB < 0 || c.Redis.CacheDB > 15 {
		return fmt.Errorf("config: REDIS_CACHE_DB %d out of range", c.Redis.CacheDB)
	}
	if strings.TrimSpace(c.Worker.Queue) == "" {
		return fmt.Errorf("config: WORKER_QUEUE must not be empty")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.TaskTimeout <= 0 {
		return fmt.Errorf("config: WORKER_TASK_TIMEOUT must be positive, got %s", c.Worker.TaskTimeout)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("config: WORKER_MAX_RETRIES must not be negative, got %d", c.Worker.MaxRetries)
	}
	if c.Database.Configured() {
		if c.Database.MaxOpenConns < 1 {
			return fmt.Errorf("config: DATABASE_MAX_OPEN_CONNS must be at least 1, got %d", c.Database.MaxOpenConns)
		}
		if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
			return fmt.Errorf("config: DATABASE_MAX_IDLE_CONNS %d exceeds DATABASE_MAX_OPEN_CONNS %d", c.Database.MaxIdleConns, c.Database.MaxOpenConns)
		}
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
