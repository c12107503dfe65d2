package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the report engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains the decision model provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EngineConfig contains the knowledge engine connection settings.
// Batch computations can take minutes, hence the generous timeout.
type EngineConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	Backoff time.Duration `mapstructure:"backoff"`
}

// WorkflowConfig contains the orchestration policy knobs
type WorkflowConfig struct {
	MaxPlanningSteps      int           `mapstructure:"max_planning_steps"`
	RelaxAfterStep        int           `mapstructure:"relax_after_step"`
	RelaxCoverage         float64       `mapstructure:"relax_coverage"`
	CoverageThreshold     float64       `mapstructure:"coverage_threshold"`
	MaxMetricRetries      int           `mapstructure:"max_metric_retries"`
	MaxConcurrentSessions int           `mapstructure:"max_concurrent_sessions"`
	OutlineMaxRetries     int           `mapstructure:"outline_max_retries"`
	OutlineBackoff        time.Duration `mapstructure:"outline_backoff"`
	OutlineBackoffCap     time.Duration `mapstructure:"outline_backoff_cap"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	File     FileConfig     `mapstructure:"file"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// FileConfig contains file storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("reportflow")
	viper.SetConfigType("json")
	if path != "" {
		viper.AddConfigPath(path)
	}
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("REPORTFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional, defaults plus env cover the common case
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")

	viper.SetDefault("llm.provider", "deepseek")
	viper.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	viper.SetDefault("llm.model", "deepseek-chat")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 4000)
	viper.SetDefault("llm.timeout", "2m")

	viper.SetDefault("engine.base_url", "http://localhost:10011")
	viper.SetDefault("engine.timeout", "3m")
	viper.SetDefault("engine.retries", 2)
	viper.SetDefault("engine.backoff", "500ms")

	viper.SetDefault("workflow.max_planning_steps", 30)
	viper.SetDefault("workflow.relax_after_step", 20)
	viper.SetDefault("workflow.relax_coverage", 0.5)
	viper.SetDefault("workflow.coverage_threshold", 0.8)
	viper.SetDefault("workflow.max_metric_retries", 3)
	viper.SetDefault("workflow.max_concurrent_sessions", 8)
	viper.SetDefault("workflow.outline_max_retries", 3)
	viper.SetDefault("workflow.outline_backoff", "2s")
	viper.SetDefault("workflow.outline_backoff_cap", "10s")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.metrics_port", 9090)

	viper.SetDefault("server.listen", ":10010")

	viper.SetDefault("storage.redis.host", "")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("storage.postgres.host", "")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.file.data_dir", "./data")
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("DEEPSEEK_API_KEY"); apiKey != "" {
		viper.Set("llm.api_key", apiKey)
	}
	if base := os.Getenv("ENGINE_BASE_URL"); base != "" {
		viper.Set("engine.base_url", base)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		viper.Set("server.jwt_secret", secret)
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url must be configured")
	}
	if config.Workflow.MaxPlanningSteps <= 0 {
		return fmt.Errorf("workflow.max_planning_steps must be positive")
	}
	if config.Workflow.CoverageThreshold <= 0 || config.Workflow.CoverageThreshold > 1 {
		return fmt.Errorf("workflow.coverage_threshold must be in (0,1]")
	}
	if config.Workflow.MaxMetricRetries <= 0 {
		return fmt.Errorf("workflow.max_metric_retries must be positive")
	}
	return nil
}

// PostgresDSN builds a connection string from the postgres settings.
// An explicit URL wins over the discrete fields.
func (c *Config) PostgresDSN() (string, error) {
	pg := c.Storage.Postgres
	if pg.URL != "" {
		return pg.URL, nil
	}
	if pg.Host == "" || pg.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := pg.Port
	if port == 0 {
		port = 5432
	}
	ssl := pg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", pg.User, pg.Password, pg.Host, port, pg.DBName, ssl), nil
}
