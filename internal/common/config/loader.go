// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cadio-client/internal/common/errors"
)

const (
	DefaultBaseURL    = "https://developer.api.autodesk.com/autocad.io/us-east/v2/"
	DefaultTokenURL   = "https://developer.api.autodesk.com/authentication/v1/authenticate"
	DefaultScope      = "code:all"
	DefaultRegion     = "us-west-2"
	DefaultReportFile = "output-report.txt"
	DefaultResultFile = "AfterImported.dwg"
)

// Load reads configs/config.yaml (plus config.<APP_ENVIRONMENT>.yaml) and the
// environment. A missing config file is not an error: every field has a default.
// Failures carry CONFIG_INVALID.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.NewConfigInvalidError(fmt.Sprintf("error reading base config: %v", err))
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("failed to read config file %s: %v", path, err))
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	registerDefaults(v)

	// AUTOCADIO_BASE_URL overrides autocadio.base_url, and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("failed to unmarshal config: %v", err))
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking towards the project root.
func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// registerDefaults makes scalar keys known to viper so AutomaticEnv can override them.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cadio-client")
	v.SetDefault("app.environment", "development")
	v.SetDefault("autocadio.base_url", DefaultBaseURL)
	v.SetDefault("autocadio.token_url", DefaultTokenURL)
	v.SetDefault("autocadio.scope", DefaultScope)
	v.SetDefault("autocadio.timeout", 30000)
	v.SetDefault("activity.definition_path", "")
	v.SetDefault("activity.skip_unchanged", false)
	v.SetDefault("storage.region", DefaultRegion)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.output_bucket", "")
	v.SetDefault("storage.output_key", "")
	v.SetDefault("storage.url_ttl_minutes", 60)
	v.SetDefault("storage.verify_objects", true)
	v.SetDefault("polling.interval", 2000)
	v.SetDefault("polling.max_duration", 30*60*1000)
	v.SetDefault("polling.max_attempts", 0)
	v.SetDefault("download.output_dir", "")
	v.SetDefault("download.report_file", DefaultReportFile)
	v.SetDefault("download.result_file", DefaultResultFile)
	v.SetDefault("download.timeout", 10*60*1000)
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("metrics.address", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// expandEnvVars resolves ${VAR} placeholders. An unset variable expands to
// empty so that required-field validation sees it as missing.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.AutocadIO.BaseURL == "" {
		cfg.AutocadIO.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.AutocadIO.BaseURL, "/") {
		cfg.AutocadIO.BaseURL += "/"
	}
	if cfg.AutocadIO.TokenURL == "" {
		cfg.AutocadIO.TokenURL = DefaultTokenURL
	}
	if cfg.AutocadIO.Scope == "" {
		cfg.AutocadIO.Scope = DefaultScope
	}
	if cfg.AutocadIO.Timeout == 0 {
		cfg.AutocadIO.Timeout = 30000
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = DefaultRegion
	}
	if cfg.Storage.URLTTLMinutes == 0 {
		cfg.Storage.URLTTLMinutes = 60
	}
	if len(cfg.Storage.Inputs) == 0 {
		cfg.Storage.Inputs = []InputObject{
			{Name: "HostDwg", Key: "template.dwg"},
			{Name: "CatImport", Key: "Aero_Punch1.CATPart"},
		}
	}

	if cfg.Polling.Interval == 0 {
		cfg.Polling.Interval = 2000
	}
	if cfg.Polling.MaxDuration == 0 {
		cfg.Polling.MaxDuration = 30 * 60 * 1000
	}

	if cfg.Download.ReportFile == "" {
		cfg.Download.ReportFile = DefaultReportFile
	}
	if cfg.Download.ResultFile == "" {
		cfg.Download.ResultFile = DefaultResultFile
	}
	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = 10 * 60 * 1000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 2
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 1
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Notifications.AWSRegion == "" {
		cfg.Notifications.AWSRegion = cfg.Storage.Region
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if !strings.HasPrefix(cfg.AutocadIO.BaseURL, "http") {
		return fmt.Errorf("autocadio.base_url must be an http(s) URL")
	}
	if !strings.HasPrefix(cfg.AutocadIO.TokenURL, "http") {
		return fmt.Errorf("autocadio.token_url must be an http(s) URL")
	}
	if cfg.Polling.Interval < 0 || cfg.Polling.MaxDuration < 0 || cfg.Polling.MaxAttempts < 0 {
		return fmt.Errorf("polling values must not be negative")
	}
	if cfg.Polling.MaxDuration < cfg.Polling.Interval {
		return fmt.Errorf("polling.max_duration must be at least polling.interval")
	}

	for i, in := range cfg.Storage.Inputs {
		if in.Name == "" || in.Key == "" {
			return fmt.Errorf("storage.inputs[%d] requires name and key", i)
		}
		if in.Bucket == "" && cfg.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for input %s", in.Name)
		}
	}
	if (cfg.Storage.OutputBucket == "") != (cfg.Storage.OutputKey == "") {
		return fmt.Errorf("storage.output_bucket and storage.output_key must be set together")
	}

	if cfg.Database.Postgres.Enabled() && cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required when postgres.host is set")
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when SNS is enabled")
	}
	if cfg.Notifications.SES.Enabled && (cfg.Notifications.SES.FromEmail == "" || cfg.Notifications.SES.ToEmail == "") {
		return fmt.Errorf("notifications.ses.from_email and to_email are required when SES is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
