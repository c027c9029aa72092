// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Workflow      WorkflowConfig     `mapstructure:"workflow"`
	Voice         VoiceConfig        `mapstructure:"voice"`
	Sheet         SheetConfig        `mapstructure:"sheet"`
	Geocode       GeocodeConfig      `mapstructure:"geocode"`
	Archive       ArchiveConfig      `mapstructure:"archive"`
	Search        SearchConfig       `mapstructure:"search"`
	Intake        IntakeConfig       `mapstructure:"intake"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
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

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// --- External Service Boundaries ---

// StorageConfig holds object storage settings (Supabase storage API).
type StorageConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Bucket       string `mapstructure:"bucket"`
	ServiceKey   string `mapstructure:"service_key"`
	CacheControl string `mapstructure:"cache_control"` // seconds, sent verbatim
	Timeout      int    `mapstructure:"timeout"`       // milliseconds
}

// WorkflowConfig holds the decision webhook settings.
type WorkflowConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds, decision bound
}

// VoiceConfig holds the conversational voice API settings.
type VoiceConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	AgentID           string `mapstructure:"agent_id"`
	Timeout           int    `mapstructure:"timeout"`            // milliseconds, per HTTP call
	InactivityTimeout int    `mapstructure:"inactivity_timeout"` // milliseconds, session fallback
}

// SheetConfig holds the spreadsheet-store (Airtable records API) settings.
type SheetConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseID          string `mapstructure:"base_id"`
	TableName       string `mapstructure:"table_name"`
	Mode            string `mapstructure:"mode"` // "insert" or "patch"
	ClaimField      string `mapstructure:"claim_field"`
	TranscriptField string `mapstructure:"transcript_field"`
	Timeout         int    `mapstructure:"timeout"` // milliseconds
}

// GeocodeConfig holds reverse geocoding lookup settings.
type GeocodeConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

// ArchiveConfig holds the local xlsx transcript archive settings.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	SheetName string `mapstructure:"sheet_name"`
}

// SearchConfig holds transcript search indexing settings.
type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

// IntakeConfig holds intake flow settings.
type IntakeConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	SessionTTL     int   `mapstructure:"session_ttl"` // milliseconds
}

// NotificationConfig holds settings for decision notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		OpsEmail  string `mapstructure:"ops_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
