package notifycompletion

import (
	"fmt"
	"time"
)

type Config struct {
	EmailEnabled bool
	SNSEnabled   bool
	FromEmail    string
	ToEmail      string
	TopicARN     string
	Timeout      time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.EmailEnabled && (c.FromEmail == "" || c.ToEmail == "") {
		return fmt.Errorf("from and to addresses are required when email is enabled")
	}
	if c.SNSEnabled && c.TopicARN == "" {
		return fmt.Errorf("topic ARN is required when SNS is enabled")
	}
	return nil
}
