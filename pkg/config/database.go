package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver  string        `koanf:"driver"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the database configuration with credentials masked.
func (c *DatabaseConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Database ---\n")
	b.WriteString(fmt.Sprintf("  driver: %s\n", c.Driver))
	b.WriteString(fmt.Sprintf("  url: %s\n", MaskURL(c.URL)))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.URL == "" {
		return fmt.Errorf("database URL is not configured")
	}
	switch c.Driver {
	case DriverPostgres:
		if !isValidPostgresURL(c.URL) {
			return fmt.Errorf("database URL must start with 'postgres://': %s", MaskURL(c.URL))
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("database timeout is not configured")
	}
	return nil
}

// isValidPostgresURL checks if the provided URL is a valid PostgreSQL URL
func isValidPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") ||
		strings.HasPrefix(url, "postgresql://")
}

// MaskURL hides the credentials part of a connection URL.
func MaskURL(url string) string {
	if url == "" {
		return "<not configured>"
	}
	parts := strings.Split(url, "@")
	if len(parts) == 2 {
		return "****@" + parts[1]
	}
	return url
}
