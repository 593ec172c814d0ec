package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	once   sync.Once
	config *Config
)

// Config represents the application configuration
type Config struct {
	// Import engine
	Import ImportConfig `mapstructure:"import"`

	// Backend endpoint
	API APIConfig `mapstructure:"api"`

	// Durable storage
	Store StoreConfig `mapstructure:"store"`

	// Change notification
	Notify NotifyConfig `mapstructure:"notify"`

	// HTTP surface
	Server ServerConfig `mapstructure:"server"`

	// Logging
	Log LogConfig `mapstructure:"log"`

	// Static import targets, used when the catalogue endpoint is unset
	Targets []TargetConfig `mapstructure:"targets"`

	// Application
	Version string `mapstructure:"version"`
}

// ImportConfig contains parsing and upload settings
type ImportConfig struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	MaxFileSizeMB     int      `mapstructure:"max_file_size_mb"`
	ChunkSize         int      `mapstructure:"chunk_size"` // rows, 0 = by file size
	MaxRetries        int      `mapstructure:"max_retries"`
	RetryDelayMS      int      `mapstructure:"retry_delay_ms"`
	RetryMultiplier   float64  `mapstructure:"retry_multiplier"`
	RetryMaxDelayMS   int      `mapstructure:"retry_max_delay_ms"`
	BreakerThreshold  int      `mapstructure:"breaker_threshold"`
	Sheet             string   `mapstructure:"sheet"`
}

// APIConfig contains backend endpoint settings
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UploadPath     string `mapstructure:"upload_path"`
	FinalizePath   string `mapstructure:"finalize_path"`
	TargetsPath    string `mapstructure:"targets_path"`
	RequestTimeout int    `mapstructure:"request_timeout"` // seconds
	RateLimit      int    `mapstructure:"rate_limit"`      // requests/s, 0 = unlimited
	Burst          int    `mapstructure:"burst"`
	UserID         string `mapstructure:"user_id"`
	UserType       string `mapstructure:"user_type"`
}

// StoreConfig contains durable storage settings
type StoreConfig struct {
	Path     string `mapstructure:"path"`
	QueueKey string `mapstructure:"queue_key"`
}

// NotifyConfig selects how queue changes are broadcast
type NotifyConfig struct {
	Driver        string `mapstructure:"driver"` // local, redis
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Channel       string `mapstructure:"channel"`
}

// ServerConfig contains HTTP surface settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// LogConfig contains logging settings
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, pretty
	Output     string `mapstructure:"output"` // stdout, stderr, file
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
}

// TargetConfig describes one backend import target
type TargetConfig struct {
	ID        string `mapstructure:"id"`
	FileName  string `mapstructure:"file_name"`
	FileType  string `mapstructure:"file_type"`
	Exchange  string `mapstructure:"exchange"`
	Segment   string `mapstructure:"segment"`
	ImportKey string `mapstructure:"import_key"`
	Enabled   bool   `mapstructure:"enabled"`
}

// Load initializes and loads the configuration
func Load(cfgFile ...string) (*Config, error) {
	once.Do(func() {
		configFile := ""
		if len(cfgFile) > 0 {
			configFile = cfgFile[0]
		}
		initViper(configFile)
	})

	cfg, err := LoadFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	config = cfg
	return config, nil
}

// LoadFromViper unmarshals a viper instance and fills zero values.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Get returns the current configuration
func Get() *Config {
	if config == nil {
		config, _ = Load("")
	}
	return config
}

// Save writes the current configuration to file
func Save() error {
	configFile := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return viper.WriteConfigAs(configFile)
}

func initViper(cfgFile string) {
	// A .env file in the working directory may carry TRADEIMPORT_* values.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(DataDir())
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TRADEIMPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetViperDefaults(viper.GetViper())

	// A missing config file is fine; defaults and env still apply.
	_ = viper.ReadInConfig()
}

// SetViperDefaults registers default values on v.
func SetViperDefaults(v *viper.Viper) {
	// Import defaults
	v.SetDefault("import.allowed_extensions", []string{"csv", "txt", "xlsx"})
	v.SetDefault("import.max_file_size_mb", 50)
	v.SetDefault("import.chunk_size", 0)
	v.SetDefault("import.max_retries", 3)
	v.SetDefault("import.retry_delay_ms", 1000)
	v.SetDefault("import.retry_multiplier", 1.0)
	v.SetDefault("import.retry_max_delay_ms", 10000)
	v.SetDefault("import.breaker_threshold", 10)
	v.SetDefault("import.sheet", "")

	// API defaults
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.upload_path", "/api/ImportData/ImportChunk")
	v.SetDefault("api.finalize_path", "/api/ImportData/UpdateSequence")
	v.SetDefault("api.targets_path", "")
	v.SetDefault("api.request_timeout", 60)
	v.SetDefault("api.rate_limit", 5)
	v.SetDefault("api.burst", 1)
	v.SetDefault("api.user_id", "")
	v.SetDefault("api.user_type", "user")

	// Store defaults
	v.SetDefault("store.path", filepath.Join(DataDir(), "tradeimport.db"))
	v.SetDefault("store.queue_key", "background_upload_queue")

	// Notify defaults
	v.SetDefault("notify.driver", "local")
	v.SetDefault("notify.redis_addr", "localhost:6379")
	v.SetDefault("notify.redis_db", 0)
	v.SetDefault("notify.channel", "tradeimport:queue")

	// Server defaults
	v.SetDefault("server.addr", ":8085")
	v.SetDefault("server.mode", "release")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "pretty")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file", filepath.Join(DataDir(), "tradeimport.log"))
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("version", "0.3.0")
}

// setDefaults ensures config fields have usable values
func setDefaults(cfg *Config) {
	if len(cfg.Import.AllowedExtensions) == 0 {
		cfg.Import.AllowedExtensions = []string{"csv", "txt", "xlsx"}
	}
	for i, ext := range cfg.Import.AllowedExtensions {
		cfg.Import.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}

	if cfg.Import.MaxFileSizeMB <= 0 {
		cfg.Import.MaxFileSizeMB = 50
	}

	if cfg.Import.MaxRetries < 0 {
		cfg.Import.MaxRetries = 0
	}

	if cfg.Import.RetryMultiplier <= 0 {
		cfg.Import.RetryMultiplier = 1.0
	}

	if cfg.Import.BreakerThreshold <= 0 {
		cfg.Import.BreakerThreshold = 10
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(DataDir(), "tradeimport.db")
	}

	if cfg.Store.QueueKey == "" {
		cfg.Store.QueueKey = "background_upload_queue"
	}

	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = "local"
	}

	if cfg.Notify.Channel == "" {
		cfg.Notify.Channel = "tradeimport:queue"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// MaxFileSizeBytes returns the upload size cap in bytes
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Import.MaxFileSizeMB) * 1024 * 1024
}

// RetryDelay returns the base delay between chunk attempts
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Import.RetryDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the cap for growing retry delays
func (c *Config) RetryMaxDelay() time.Duration {
	if c.Import.RetryMaxDelayMS <= 0 {
		return c.RetryDelay()
	}
	return time.Duration(c.Import.RetryMaxDelayMS) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout
func (c *Config) RequestTimeout() time.Duration {
	if c.API.RequestTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		return configFile
	}
	return filepath.Join(DataDir(), "config.yaml")
}

// DataDir returns the TradeImport data directory
func DataDir() string {
	if dir := os.Getenv("TRADEIMPORT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tradeimport")
}
