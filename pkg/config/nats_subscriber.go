package config

import (
	"fmt"
	"strings"
	"time"
)

// SubscriberConfig configures the JetStream stream and the durable consumer of order events.
type SubscriberConfig struct {
	Stream   string        `koanf:"stream"`
	Subjects []string      `koanf:"subjects"`
	Subject  string        `koanf:"subject"`
	Consumer string        `koanf:"consumer"`
	Timeout  time.Duration `koanf:"timeout"`
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
}

// String returns a string representation of the NATS Subscriber configuration.
func (c *SubscriberConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS Subscriber ---\n")
	b.WriteString(fmt.Sprintf("  stream: %s\n", c.Stream))
	b.WriteString(fmt.Sprintf("  subjects: %s\n", strings.Join(c.Subjects, ",")))
	b.WriteString(fmt.Sprintf("  subject: %s\n", c.Subject))
	b.WriteString(fmt.Sprintf("  consumer: %s\n", c.Consumer))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  interval: %s\n", c.Interval))
	b.WriteString(fmt.Sprintf("  workers: %d\n", c.Workers))
	return b.String()
}

func (c *SubscriberConfig) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("SubscriberConfig: stream is not configured")
	}
	if len(c.Subjects) == 0 {
		c.Subjects = []string{"orders.>"}
	}
	if c.Subject == "" {
		return fmt.Errorf("SubscriberConfig: subject is not configured")
	}
	if c.Consumer == "" {
		return fmt.Errorf("SubscriberConfig: consumer is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("SubscriberConfig: timeout must be greater than zero")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("SubscriberConfig: interval must be greater than zero")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("SubscriberConfig: workers must be greater than zero")
	}
	return nil
}
