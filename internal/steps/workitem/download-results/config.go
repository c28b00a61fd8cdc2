package downloadresults

import (
	"fmt"
	"time"
)

type Config struct {
	OutputDir  string        `mapstructure:"output_dir"`
	ReportFile string        `mapstructure:"report_file"`
	ResultFile string        `mapstructure:"result_file"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		ReportFile: "output-report.txt",
		ResultFile: "AfterImported.dwg",
		Timeout:    10 * time.Minute,
	}
}

func (c *Config) Validate() error {
	if c.ReportFile == "" || c.ResultFile == "" {
		return fmt.Errorf("report_file and result_file are required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
