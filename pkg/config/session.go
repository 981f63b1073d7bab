package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// SessionConfig controls where session snapshots live and how long idle sessions survive.
type SessionConfig struct {
	Store         string        `koanf:"store"`
	TTL           time.Duration `koanf:"ttl"`
	SaveTimeout   time.Duration `koanf:"savetimeout"`
	SweepInterval time.Duration `koanf:"sweepinterval"`
	CookieSecure  bool          `koanf:"cookiesecure"`
}

func (c *SessionConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Session ---\n")
	b.WriteString(fmt.Sprintf("  store: %s\n", c.Store))
	b.WriteString(fmt.Sprintf("  ttl: %s\n", c.TTL))
	b.WriteString(fmt.Sprintf("  savetimeout: %s\n", c.SaveTimeout))
	b.WriteString(fmt.Sprintf("  sweepinterval: %s\n", c.SweepInterval))
	b.WriteString(fmt.Sprintf("  cookiesecure: %t\n", c.CookieSecure))
	return b.String()
}

func (c *SessionConfig) Validate() error {
	switch c.Store {
	case "":
		c.Store = SessionStoreMemory
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("unsupported session store: %s", c.Store)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("session ttl must be greater than zero")
	}
	if c.SaveTimeout <= 0 {
		return fmt.Errorf("session save timeout must be greater than zero")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("session sweep interval must be greater than zero")
	}
	return nil
}
