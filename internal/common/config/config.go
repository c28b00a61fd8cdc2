// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	AutocadIO     AutocadIOConfig    `mapstructure:"autocadio"`
	Activity      ActivityConfig     `mapstructure:"activity"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Polling       PollingConfig      `mapstructure:"polling"`
	Download      DownloadConfig     `mapstructure:"download"`
	Credentials   map[string]string  `mapstructure:"credentials"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// AutocadIOConfig points at the Design Automation service and its token endpoint.
type AutocadIOConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	TokenURL string `mapstructure:"token_url"`
	Scope    string `mapstructure:"scope"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// ActivityConfig optionally replaces the compiled-in activity definition.
type ActivityConfig struct {
	DefinitionPath string `mapstructure:"definition_path"`
	// SkipUnchanged avoids re-uploading an activity whose stored definition already matches.
	SkipUnchanged  bool   `mapstructure:"skip_unchanged"`
}

// StorageConfig describes where work item inputs live and where outputs go.
type StorageConfig struct {
	Region        string        `mapstructure:"region"`
	Bucket        string        `mapstructure:"bucket"`
	Inputs        []InputObject `mapstructure:"inputs"`
	OutputBucket  string        `mapstructure:"output_bucket"`
	OutputKey     string        `mapstructure:"output_key"`
	URLTTLMinutes int           `mapstructure:"url_ttl_minutes"`
	VerifyObjects bool          `mapstructure:"verify_objects"`
}

// InputObject binds an activity input parameter to an object key in Bucket.
// A list is used instead of a map because viper lower-cases map keys.
type InputObject struct {
	Name   string `mapstructure:"name"`
	Key    string `mapstructure:"key"`
	Bucket string `mapstructure:"bucket"` // overrides StorageConfig.Bucket when set
}

// URLTTL returns the presigned URL lifetime.
func (s StorageConfig) URLTTL() time.Duration {
	return time.Duration(s.URLTTLMinutes) * time.Minute
}

// PollingConfig bounds the work item status loop.
type PollingConfig struct {
	Interval    int `mapstructure:"interval"`     // milliseconds
	MaxDuration int `mapstructure:"max_duration"` // milliseconds
	MaxAttempts int `mapstructure:"max_attempts"` // 0 = limited by duration only
}

// DownloadConfig names the local files written after a run.
type DownloadConfig struct {
	OutputDir  string `mapstructure:"output_dir"`
	ReportFile string `mapstructure:"report_file"`
	ResultFile string `mapstructure:"result_file"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// Enabled reports whether run history should be written.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether the token cache should use Redis.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// NotificationConfig holds settings for the completion notifier.
type NotificationConfig struct {
	AWSRegion string `mapstructure:"aws_region"`
	SNS       struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"ses"`
}

// Enabled reports whether any notification channel is switched on.
func (n NotificationConfig) Enabled() bool {
	return n.SNS.Enabled || n.SES.Enabled
}

// MetricsConfig controls the optional /metrics listener.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
