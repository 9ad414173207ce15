package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "TASKFLOW_"
	maxConfigFileSize = 1024 * 1024
)

var defaults = []byte(`
http:
  addr: ":8080"
  cors_origins: ["http://localhost:4200"]
  rate_burst: 60
  rate_per_second: 30
  shutdown_timeout: 10s
grpc:
  addr: ":9090"
database:
  max_open_conns: 25
auth:
  token_ttl: 24h
  issuer: taskflow
invite:
  ttl: 168h
smtp:
  port: 587
  workers: 2
  queue: 256
app:
  name: Task Manager
  frontend_url: http://localhost:4200
nats:
  subject_prefix: taskflow
log:
  level: info
sweep:
  interval: 15m
  window: 24h
`)

// Load reads defaults, then the optional YAML file at path, then TASKFLOW_* environment variables.
//
// Environment keys map to sections on their first underscore:
//
//	TASKFLOW_DATABASE_DSN      -> database.dsn
//	TASKFLOW_APP_FRONTEND_URL  -> app.frontend_url
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.HTTP.CORSOrigins = splitList(cfg.HTTP.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return io.ReadAll(f)
}

// splitList flattens comma separated entries so env values like "a,b" and YAML lists behave the same.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
