package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	DefaultPort        = 8090
	DefaultWebhookTTL  = 5 * time.Minute
	DefaultDedupWindow = 60 * time.Second
	DefaultWorkers     = 2

	defaultCatalogRel  = "0_admin/00_index/portals.json"
	defaultTemplateRel = "0_admin/02_templates/daily_note_2026.md"
	defaultJournalRel  = "1_life/13_journal"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Portal   PortalConfig   `yaml:"portal"`
	Worker   WorkerConfig   `yaml:"worker"`
	Vault    VaultConfig    `yaml:"vault"`
	CORS     CORSConfig     `yaml:"cors"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" envconfig:"WM_PORTAL_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PortalConfig holds trigger authentication, dedup and retention settings
type PortalConfig struct {
	WebhookSecret   string   `yaml:"webhook_secret" envconfig:"WM_PORTAL_WEBHOOK_SECRET"`
	WebhookTTL      Duration `yaml:"webhook_ttl" envconfig:"WM_PORTAL_WEBHOOK_TTL"`
	DedupWindow     Duration `yaml:"dedup_window" envconfig:"WM_PORTAL_DEDUP_WINDOW"`
	CatalogPath     string   `yaml:"catalog_path" envconfig:"WM_PORTAL_CATALOG"`
	RecordRetention Duration `yaml:"record_retention"`
	SweepInterval   Duration `yaml:"sweep_interval"`
}

// DedupWindowDuration returns the effective dedup window. Unset means the
// default and any negative value turns deduplication off.
func (p PortalConfig) DedupWindowDuration() time.Duration {
	if p.DedupWindow < 0 {
		return 0
	}
	return p.DedupWindow.Std()
}

// WorkerConfig holds job worker pool settings
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency" envconfig:"WM_PORTAL_WORKERS"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ObserverTimeout time.Duration `yaml:"observer_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// VaultConfig points the built-in actions at the notes repository
type VaultConfig struct {
	RepoPath        string `yaml:"repo_path" envconfig:"WINTERMUTE_REPO_PATH"`
	TemplatePath    string `yaml:"template_path"`
	JournalDir      string `yaml:"journal_dir"`
	GitUserName     string `yaml:"git_user_name"`
	GitUserEmail    string `yaml:"git_user_email"`
	GitPush         bool   `yaml:"git_push"`
	GiteaBaseURL    string `yaml:"gitea_base_url" envconfig:"WM_GITEA_BASE_URL"`
	GiteaRepo       string `yaml:"gitea_repo"`
	Branch          string `yaml:"branch"`
	WorkingCopyRepo string `yaml:"working_copy_repo"`
}

// CORSConfig holds allowed origins for browser clients
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the job archive
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password" envconfig:"WM_PORTAL_DB_PASSWORD"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection settings for job events
type RabbitMQConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	User        string           `yaml:"user"`
	Password    string           `yaml:"password" envconfig:"WM_PORTAL_AMQP_PASSWORD"`
	VHost       string           `yaml:"vhost"`
	Exchange    ExchangeConfig   `yaml:"exchange"`
	RoutingBase string           `yaml:"routing_base"`
	Connection  ConnectionConfig `yaml:"connection"`
	Publish     PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Duration is a time.Duration that also accepts a bare integer as seconds,
// the form operators use in WM_PORTAL_WEBHOOK_TTL and friends.
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Decode implements envconfig.Decoder
func (d *Duration) Decode(value string) error {
	parsed, err := parseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return parsed, nil
}

// Load reads the configuration file, overlays the environment and fills
// defaults for anything left unset.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	config.ApplyDefaults()

	return &config, nil
}

// ApplyDefaults fills zero values with the service defaults
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Portal.WebhookTTL == 0 {
		c.Portal.WebhookTTL = Duration(DefaultWebhookTTL)
	}
	if c.Portal.DedupWindow == 0 {
		c.Portal.DedupWindow = Duration(DefaultDedupWindow)
	}
	if c.Portal.RecordRetention > 0 && c.Portal.SweepInterval == 0 {
		c.Portal.SweepInterval = Duration(time.Minute)
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = DefaultWorkers
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	if c.Vault.RepoPath != "" {
		if c.Portal.CatalogPath == "" {
			c.Portal.CatalogPath = filepath.Join(c.Vault.RepoPath, defaultCatalogRel)
		}
	}
	if c.Vault.TemplatePath == "" {
		c.Vault.TemplatePath = defaultTemplateRel
	}
	if c.Vault.JournalDir == "" {
		c.Vault.JournalDir = defaultJournalRel
	}
	if c.Vault.Branch == "" {
		c.Vault.Branch = "main"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.App.Name == "" {
		c.App.Name = "url-portal"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout < 0 {
		return fmt.Errorf("worker job_timeout must not be negative")
	}

	if c.Portal.WebhookTTL <= 0 {
		return fmt.Errorf("portal webhook_ttl must be greater than 0")
	}

	if window := c.Portal.DedupWindowDuration(); c.Portal.RecordRetention > 0 && c.Portal.RecordRetention.Std() <= window {
		return fmt.Errorf("portal record_retention (%s) must exceed dedup_window (%s)",
			c.Portal.RecordRetention.Std(), window)
	}

	if c.Vault.RepoPath == "" {
		return fmt.Errorf("vault repo_path is required")
	}

	if c.Portal.CatalogPath == "" {
		return fmt.Errorf("portal catalog_path is required")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}

		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	return nil
}

// Address returns the host:port the HTTP server listens on
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
