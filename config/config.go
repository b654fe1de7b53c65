// Package config provides configuration management for recordlock.
// It handles loading and validating configuration from YAML/JSON files and
// environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	Lease     LeaseConfig     `koanf:"lease"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// ServerConfig holds HTTP server configuration. TLS is enabled when both
// cert_file and key_file are set.
type ServerConfig struct {
	ListenAddr   string        `koanf:"listen_addr"`
	CertFile     string        `koanf:"cert_file"`
	KeyFile      string        `koanf:"key_file"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// AuthConfig lists the actor credentials the surrounding application has
// issued. Each credential binds a bearer token to an actor and role.
type AuthConfig struct {
	Actors []ActorConfig `koanf:"actors"`
}

// ActorConfig is one actor credential.
type ActorConfig struct {
	Token string `koanf:"token"`
	ID    string `koanf:"id"`
	Role  string `koanf:"role"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StoreConfig selects and configures the lease store backend: "memory",
// "redis", "sqlite" or "postgres".
type StoreConfig struct {
	Type           string `koanf:"type"`
	DSN            string `koanf:"dsn"`
	SQLitePath     string `koanf:"sqlite_path"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`
}

// LeaseConfig holds lease timing. TTL must be at least three times the
// poll interval advertised to clients so a lease never self-expires
// between a holder's polls.
type LeaseConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	PollInterval  time.Duration `koanf:"poll_interval"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RateLimitConfig holds the lock endpoint rate limit.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}
