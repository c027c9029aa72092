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
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like ELEVENLABS_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Load .env from multiple possible locations (service root, test dirs)
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
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

// Expand ${VAR} placeholders left in yaml values
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	// Voice API
	if cfg.Voice.APIKey == "" {
		if val := os.Getenv("ELEVENLABS_API_KEY"); val != "" {
			cfg.Voice.APIKey = val
		}
	}
	if cfg.Voice.AgentID == "" {
		if val := os.Getenv("ELEVENLABS_AGENT_ID"); val != "" {
			cfg.Voice.AgentID = val
		}
	}

	// Spreadsheet store
	if cfg.Sheet.APIKey == "" {
		if val := os.Getenv("AIRTABLE_API_KEY"); val != "" {
			cfg.Sheet.APIKey = val
		}
	}
	if cfg.Sheet.BaseID == "" {
		if val := os.Getenv("AIRTABLE_BASE_ID"); val != "" {
			cfg.Sheet.BaseID = val
		}
	}
	if cfg.Sheet.TableName == "" {
		if val := os.Getenv("AIRTABLE_TABLE_NAME"); val != "" {
			cfg.Sheet.TableName = val
		}
	}

	// Object storage
	if cfg.Storage.ServiceKey == "" {
		if val := os.Getenv("STORAGE_SERVICE_KEY"); val != "" {
			cfg.Storage.ServiceKey = val
		}
	}

	// Workflow webhook
	if cfg.Workflow.WebhookURL == "" {
		if val := os.Getenv("WORKFLOW_WEBHOOK_URL"); val != "" {
			cfg.Workflow.WebhookURL = val
		}
	}

	// Database overrides
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30000
	}
	if cfg.Server.WriteTimeout == 0 {
		// The decision round trip can hold a response open for up to two
		// minutes; the write timeout has to outlive it.
		cfg.Server.WriteTimeout = 150000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// External boundary timeouts
	if cfg.Storage.Timeout == 0 {
		cfg.Storage.Timeout = 30000
	}
	if cfg.Storage.CacheControl == "" {
		cfg.Storage.CacheControl = "3600"
	}
	if cfg.Workflow.Timeout == 0 {
		cfg.Workflow.Timeout = 120000
	}
	if cfg.Voice.Timeout == 0 {
		cfg.Voice.Timeout = 30000
	}
	if cfg.Voice.InactivityTimeout == 0 {
		cfg.Voice.InactivityTimeout = 300000
	}
	if cfg.Voice.BaseURL == "" {
		cfg.Voice.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.Sheet.Timeout == 0 {
		cfg.Sheet.Timeout = 30000
	}
	if cfg.Sheet.Mode == "" {
		cfg.Sheet.Mode = "insert"
	}
	if cfg.Sheet.ClaimField == "" {
		cfg.Sheet.ClaimField = "Claim ID"
	}
	if cfg.Sheet.TranscriptField == "" {
		cfg.Sheet.TranscriptField = "Transcript"
	}
	if cfg.Geocode.Timeout == 0 {
		cfg.Geocode.Timeout = 10000
	}
	if cfg.Archive.SheetName == "" {
		cfg.Archive.SheetName = "Transcripts"
	}
	if cfg.Search.Index == "" {
		cfg.Search.Index = "transcripts"
	}

	// Intake defaults
	if cfg.Intake.MaxUploadBytes == 0 {
		cfg.Intake.MaxUploadBytes = 10 << 20
	}
	if cfg.Intake.SessionTTL == 0 {
		cfg.Intake.SessionTTL = 86400000
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Workflow.WebhookURL == "" {
		return fmt.Errorf("workflow.webhook_url is required")
	}

	if cfg.Storage.BaseURL == "" {
		return fmt.Errorf("storage.base_url is required")
	}
	if cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Sheet.Mode != "insert" && cfg.Sheet.Mode != "patch" {
		return fmt.Errorf("sheet.mode must be \"insert\" or \"patch\", got %q", cfg.Sheet.Mode)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
