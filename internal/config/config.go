package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"backoffice/internal/model"
	"backoffice/pkg/config"
	"backoffice/pkg/otel"
)

type Config struct {
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	JWT      config.JWTConfig    `yaml:"jwt"`
	Server   config.ServerConfig `yaml:"server"`
	Otel     otel.Config         `yaml:"otel"`
	Log      LogConfig           `yaml:"log"`
	Store    StoreConfig         `yaml:"store"`
	Feed     FeedConfig          `yaml:"feed"`
	Identity IdentityConfig      `yaml:"identity"`
	Live     LiveConfig          `yaml:"live"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig selects the notification store: "postgres" or "memory".
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type FeedConfig struct {
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
}

func (f FeedConfig) RetryDelay() time.Duration {
	if f.RetryDelaySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(f.RetryDelaySeconds) * time.Second
}

// IdentityConfig points at the admin identity service. With no URL the
// static Admins list is used instead.
type IdentityConfig struct {
	URL             string        `yaml:"url"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	Admins          []StaticAdmin `yaml:"admins"`
}

func (i IdentityConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

func (i IdentityConfig) CacheTTL() time.Duration {
	if i.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(i.CacheTTLSeconds) * time.Second
}

type StaticAdmin struct {
	AdminID      string   `yaml:"admin_id"`
	Roles        []string `yaml:"roles"`
	Permissions  []string `yaml:"permissions"`
	IsSuperAdmin bool     `yaml:"is_super_admin"`
}

func (i IdentityConfig) StaticIdentities() []model.Identity {
	out := make([]model.Identity, 0, len(i.Admins))
	for _, a := range i.Admins {
		out = append(out, model.Identity{
			AdminID:      a.AdminID,
			Roles:        a.Roles,
			Permissions:  a.Permissions,
			IsSuperAdmin: a.IsSuperAdmin,
		})
	}
	return out
}

// LiveConfig tunes the websocket channel.
type LiveConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// Load reads config/<CONFIG_ENV>.yaml over config/base.yaml, then applies
// environment overrides.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	var cfg Config
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	if url := os.Getenv("IDENTITY_URL"); url != "" {
		cfg.Identity.URL = url
	}
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = driver
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "":
		c.Store.Driver = "postgres"
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8085"
	}
	return nil
}
