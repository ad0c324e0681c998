package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strideworks/stride/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Data          DataConfig          `yaml:"data"`
	Backup        BackupConfig        `yaml:"backup"`
	Sync          SyncConfig          `yaml:"sync"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for probes)
	HealthPort string `yaml:"health_port"`
}

// DataConfig locates the local metrics database.
type DataConfig struct {
	DatabasePath string `yaml:"database_path"`
	DeviceName   string `yaml:"device_name"`
}

// BackupConfig holds snapshot rotation and optional remote upload settings.
type BackupConfig struct {
	Dir string `yaml:"dir"`

	// Remote upload is enabled when a bucket is configured.
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// SyncConfig holds sync queue delivery settings. An empty endpoint leaves
// the queue offline: mutations accumulate until connectivity is configured.
type SyncConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// and STRIDE_* environment variables, in that order of precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("STRIDE_CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	device, err := os.Hostname()
	if err != nil || device == "" {
		device = "stride-device"
	}

	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Data: DataConfig{
			DatabasePath: "data/stride.db",
			DeviceName:   device,
		},
		Backup: BackupConfig{
			Dir:      "data/backups",
			S3Region: "us-east-1",
		},
		Sync: SyncConfig{
			MaxAttempts: 5,
			Timeout:     10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

// applyEnv overrides any field with its STRIDE_* environment variable. The
// current value acts as the default, so unset variables change nothing.
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("STRIDE_HOST", c.Server.Host)
	c.Server.Port = getEnv("STRIDE_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("STRIDE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("STRIDE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("STRIDE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("STRIDE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("STRIDE_HEALTH_PORT", c.Server.HealthPort)

	c.Data.DatabasePath = getEnv("STRIDE_DB_PATH", c.Data.DatabasePath)
	c.Data.DeviceName = getEnv("STRIDE_DEVICE_NAME", c.Data.DeviceName)

	c.Backup.Dir = getEnv("STRIDE_BACKUP_DIR", c.Backup.Dir)
	c.Backup.S3Endpoint = getEnv("STRIDE_S3_ENDPOINT", c.Backup.S3Endpoint)
	c.Backup.S3Region = getEnv("STRIDE_S3_REGION", c.Backup.S3Region)
	c.Backup.S3Bucket = getEnv("STRIDE_S3_BUCKET", c.Backup.S3Bucket)
	c.Backup.S3AccessKey = getEnv("STRIDE_S3_ACCESS_KEY", c.Backup.S3AccessKey)
	c.Backup.S3SecretKey = getEnv("STRIDE_S3_SECRET_KEY", c.Backup.S3SecretKey)
	c.Backup.S3UsePathStyle = getEnvBool("STRIDE_S3_USE_PATH_STYLE", c.Backup.S3UsePathStyle)

	c.Sync.Endpoint = getEnv("STRIDE_SYNC_ENDPOINT", c.Sync.Endpoint)
	c.Sync.MaxAttempts = getEnvInt("STRIDE_SYNC_MAX_ATTEMPTS", c.Sync.MaxAttempts)
	c.Sync.Timeout = getEnvDuration("STRIDE_SYNC_TIMEOUT", c.Sync.Timeout)

	c.Observability.LogLevel = getEnv("STRIDE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("STRIDE_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Data.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Data.DeviceName == "" {
		return fmt.Errorf("device name is required")
	}
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup directory is required")
	}
	if c.Backup.S3Bucket != "" && c.Backup.S3Region == "" {
		return fmt.Errorf("S3 region is required when a bucket is configured")
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync max attempts must be positive")
	}
	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(strings.ToLower(c.Observability.LogLevel))
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
