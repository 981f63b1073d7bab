// Package config holds the storefront configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer     config.HTTPConfig           `koanf:"server"`
	GrpcServer     config.GrpcServerConfig     `koanf:"grpc"`
	Database       config.DatabaseConfig       `koanf:"database"`
	Redis          config.RedisConfig          `koanf:"redis"`
	Session        config.SessionConfig        `koanf:"session"`
	IdP            config.IdP                  `koanf:"idp"`
	Nats           config.NATSConfig           `koanf:"nats"`
	Subscriber     config.SubscriberConfig     `koanf:"subscriber"`
	Blob           config.BlobConfig           `koanf:"blob"`
	CircuitBreaker config.CircuitBreakerConfig `koanf:"circuitbreaker"`
	Telemetry      config.TelemetryConfig      `koanf:"telemetry"`
	Log            config.LogConfig            `koanf:"log"`
	PProf          config.PProfConfig          `koanf:"pprof"`
	Shutdown       config.ShutdownConfig       `koanf:"shutdown"`
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GrpcServer.String())
	b.WriteString(c.Database.String())
	if c.Session.Store == config.SessionStoreRedis {
		b.WriteString(c.Redis.String())
	}
	b.WriteString(c.Session.String())
	b.WriteString(c.IdP.String())
	b.WriteString(c.Nats.String())
	if c.Nats.Enabled {
		b.WriteString(c.Subscriber.String())
	}
	b.WriteString(c.Blob.String())
	b.WriteString(c.CircuitBreaker.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks every block. Redis and the subscriber are only checked when in use.
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer,
		&c.GrpcServer,
		&c.Database,
		&c.Session,
		&c.IdP,
		&c.Nats,
		&c.Blob,
		&c.CircuitBreaker,
		&c.Telemetry,
		&c.Log,
		&c.PProf,
		&c.Shutdown,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Session.Store == config.SessionStoreRedis {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("session store is redis: %w", err)
		}
	}
	if c.Nats.Enabled {
		if err := c.Subscriber.Validate(); err != nil {
			return err
		}
	}
	return nil
}
