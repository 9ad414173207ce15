// Package config loads taskflow configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	GRPC     GRPCConfig     `koanf:"grpc"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Invite   InviteConfig   `koanf:"invite"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	App      AppConfig      `koanf:"app"`
	NATS     NATSConfig     `koanf:"nats"`
	Log      LogConfig      `koanf:"log"`
	Sweep    SweepConfig    `koanf:"sweep"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateBurst       int           `koanf:"rate_burst"`
	RatePerSecond   int           `koanf:"rate_per_second"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// GRPCConfig controls the health service listener. An empty Addr disables it.
type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

type AuthConfig struct {
	Secret   string        `koanf:"secret"`
	TokenTTL time.Duration `koanf:"token_ttl"`
	Issuer   string        `koanf:"issuer"`
}

type InviteConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// SMTPConfig configures outbound mail. An empty Host logs messages instead of sending them.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	Workers  int    `koanf:"workers"`
	Queue    int    `koanf:"queue"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	FrontendURL string `koanf:"frontend_url"`
}

// NATSConfig enables the cross-replica realtime relay when URL is set.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// SweepConfig drives the due-soon sweeper. A zero Interval disables it.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
	Window   time.Duration `koanf:"window"`
}

const minSecretLength = 16

// Validate reports the first missing or invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required (TASKFLOW_DATABASE_DSN)")
	}
	if len(c.Auth.Secret) < minSecretLength {
		return fmt.Errorf("auth.secret must be at least %d bytes (TASKFLOW_AUTH_SECRET)", minSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Invite.TTL <= 0 {
		return errors.New("invite.ttl must be positive")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if c.HTTP.RateBurst <= 0 || c.HTTP.RatePerSecond <= 0 {
		return errors.New("http.rate_burst and http.rate_per_second must be positive")
	}
	if _, err := url.ParseRequestURI(c.App.FrontendURL); err != nil {
		return fmt.Errorf("app.frontend_url: %w", err)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("smtp.from is required when smtp.host is set")
	}
	if c.Sweep.Interval < 0 || c.Sweep.Window < 0 {
		return errors.New("sweep durations must not be negative")
	}
	return nil
}
