package ensureactivity

import (
	"fmt"
	"time"
)

type Config struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// SkipUnchanged avoids an update, and with it a new server-side version, when the remote activity already matches.
	SkipUnchanged bool `mapstructure:"skip_unchanged"`
}

func DefaultConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
