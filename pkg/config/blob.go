package config

import (
	"fmt"
	"strings"
)

// BlobConfig configures uploaded image storage.
type BlobConfig struct {
	PublicBaseURL string `koanf:"publicbaseurl"`
	PathPrefix    string `koanf:"pathprefix"`
	MaxSizeBytes  int64  `koanf:"maxsizebytes"`
}

func (c *BlobConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Blob ---\n")
	b.WriteString(fmt.Sprintf("  publicbaseurl: %s\n", c.PublicBaseURL))
	b.WriteString(fmt.Sprintf("  pathprefix: %s\n", c.PathPrefix))
	b.WriteString(fmt.Sprintf("  maxsizebytes: %d\n", c.MaxSizeBytes))
	return b.String()
}

func (c *BlobConfig) Validate() error {
	if c.PublicBaseURL == "" {
		return fmt.Errorf("blob public base URL is not configured")
	}
	if c.PathPrefix == "" {
		c.PathPrefix = "product-images"
	}
	if c.MaxSizeBytes <= 0 {
		return fmt.Errorf("blob max size must be greater than zero")
	}
	return nil
}
