package config

import "time"

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:   ":8440",
			CertFile:     "",
			KeyFile:      "",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Actors: nil,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Type:           "memory",
			DSN:            "",
			SQLitePath:     "./recordlock.sqlite3",
			RedisAddr:      "localhost:6379",
			RedisPassword:  "",
			RedisKeyPrefix: "recordlock:",
		},
		Lease: LeaseConfig{
			TTL:           90 * time.Second,
			PollInterval:  25 * time.Second,
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			RPS:   100,
			Burst: 20,
		},
	}
}
