package config

import (
	"fmt"
	"strings"
	"time"
)

// IdP configures token verification and the Keycloak client used for sign-in and registration.
type IdP struct {
	BaseURL      string        `koanf:"baseurl"`
	Realm        string        `koanf:"realm"`
	JwksURL      string        `koanf:"jwksurl"`
	Issuer       string        `koanf:"issuer"`
	ClientID     string        `koanf:"clientid"`
	ClientSecret string        `koanf:"clientsecret"`
	MinInterval  time.Duration `koanf:"mininterval"`
	Timeout      time.Duration `koanf:"timeout"`
}

func (c *IdP) String() string {
	var b strings.Builder
	b.WriteString("\n--- IdP ---\n")
	b.WriteString(fmt.Sprintf("  baseurl: %s\n", c.BaseURL))
	b.WriteString(fmt.Sprintf("  realm: %s\n", c.Realm))
	b.WriteString(fmt.Sprintf("  jwksurl: %s\n", c.JwksURL))
	b.WriteString(fmt.Sprintf("  issuer: %s\n", c.Issuer))
	b.WriteString(fmt.Sprintf("  clientid: %s\n", c.ClientID))
	b.WriteString(fmt.Sprintf("  mininterval: %s\n", c.MinInterval))
	return b.String()
}

func (c *IdP) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("IdP base URL cannot be empty")
	}
	if c.Realm == "" {
		return fmt.Errorf("IdP realm cannot be empty")
	}
	if c.JwksURL == "" {
		return fmt.Errorf("IdP JWKS URL cannot be empty")
	}
	if c.Issuer == "" {
		return fmt.Errorf("IdP issuer cannot be empty")
	}
	if c.ClientID == "" {
		return fmt.Errorf("IdP client ID cannot be empty")
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("IdP minimum interval must be greater than zero")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("IdP timeout must be greater than zero")
	}
	return nil
}
