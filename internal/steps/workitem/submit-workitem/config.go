package submitworkitem

import (
	"fmt"
	"time"
)

type Config struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	MaxAttempts  int           `mapstructure:"max_attempts"` // 0 = bounded by MaxDuration only
	// MaxStatusErrors is how many consecutive retryable status errors are tolerated while polling.
	MaxStatusErrors int           `mapstructure:"max_status_errors"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		PollInterval:    2 * time.Second,
		MaxDuration:     30 * time.Minute,
		MaxStatusErrors: 3,
		RequestTimeout:  30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.MaxDuration < c.PollInterval {
		return fmt.Errorf("max_duration must be at least poll_interval")
	}
	if c.MaxAttempts < 0 || c.MaxStatusErrors < 0 {
		return fmt.Errorf("max_attempts and max_status_errors must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}
