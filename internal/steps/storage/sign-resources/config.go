package signresources

import (
	"fmt"
	"time"
)

type Config struct {
	URLTTL          time.Duration `mapstructure:"url_ttl"`
	OutputParameter string        `mapstructure:"output_parameter"`
}

func DefaultConfig() *Config {
	return &Config{
		URLTTL:          60 * time.Minute,
		OutputParameter: "Result",
	}
}

func (c *Config) Validate() error {
	if c.URLTTL <= 0 {
		return fmt.Errorf("url_ttl must be positive")
	}
	if c.URLTTL > 7*24*time.Hour {
		return fmt.Errorf("url_ttl must not exceed 7 days")
	}
	if c.OutputParameter == "" {
		return fmt.Errorf("output_parameter is required")
	}
	return nil
}
