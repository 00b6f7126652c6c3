package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"service-nanny/internal/env"

	"github.com/spf13/viper"
)

/**
 * Server configuration parameters
 * @property {string} address - TCP listening address (e.g. ":8080")
 * @property {string} socket - Unix socket path for CLI access, "-" disables it
 * @property {string} mode - gin mode (debug/release/test)
 * @property {int} maxConcurrent - Bound on concurrently handled control requests
 * @property {[]string} corsOrigins - Origins allowed to call the API from a browser
 */
type ServerConfig struct {
	Address       string   `mapstructure:"address"`
	Socket        string   `mapstructure:"socket"`
	Mode          string   `mapstructure:"mode"`
	MaxConcurrent int      `mapstructure:"max_concurrent"`
	CorsOrigins   []string `mapstructure:"cors_origins"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" writes to stdout only
 * @property {string} format - console or json
 */
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

/**
 * Service discovery configuration
 * @property {string} dir - Root directory whose subdirectories hold service manifests
 * @property {[]string} exclude - Subdirectory names never treated as services
 * @property {bool} watch - Rescan automatically when manifests change
 */
type ServicesConfig struct {
	Dir           string        `mapstructure:"dir"`
	Exclude       []string      `mapstructure:"exclude"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

/**
 * Container runtime configuration
 * @property {string} command - Runtime executable
 * @property {[]string} up - Argument template bringing a service up
 * @property {[]string} down - Argument template tearing a service down
 * @property {[]string} ps - Argument template listing running containers, non-empty stdout means up
 * @property {[]string} logs - Argument template fetching logs, {{.Tail}} is the line count
 */
type RuntimeConfig struct {
	Command     string        `mapstructure:"command"`
	Up          []string      `mapstructure:"up"`
	Down        []string      `mapstructure:"down"`
	Ps          []string      `mapstructure:"ps"`
	Logs        []string      `mapstructure:"logs"`
	UpTimeout   time.Duration `mapstructure:"up_timeout"`
	DownTimeout time.Duration `mapstructure:"down_timeout"`
	PsTimeout   time.Duration `mapstructure:"ps_timeout"`
	LogsTimeout time.Duration `mapstructure:"logs_timeout"`
}

type HealthConfig struct {
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RewriteLocalhost string        `mapstructure:"rewrite_localhost"`
	Concurrency      int           `mapstructure:"concurrency"`
}

type JournalConfig struct {
	DSN    string `mapstructure:"dsn"`
	Retain int    `mapstructure:"retain"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Services ServicesConfig `mapstructure:"services"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Health   HealthConfig   `mapstructure:"health"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

var Config AppConfig

func Get() *AppConfig {
	return &Config
}

// SetDefaults registers every key so env overrides work without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.socket", env.DefaultSocketPath())
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_concurrent", 16)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "console")
	v.SetDefault("log.format", "console")

	v.SetDefault("services.dir", "./services")
	v.SetDefault("services.exclude", []string{"service-nanny"})
	v.SetDefault("services.watch", false)
	v.SetDefault("services.watch_debounce", 2*time.Second)

	v.SetDefault("runtime.command", "docker")
	v.SetDefault("runtime.up", []string{"compose", "up", "-d"})
	v.SetDefault("runtime.down", []string{"compose", "down"})
	v.SetDefault("runtime.ps", []string{"compose", "ps", "--status", "running", "-q"})
	v.SetDefault("runtime.logs", []string{"compose", "logs", "--no-color", "--tail", "{{.Tail}}"})
	v.SetDefault("runtime.up_timeout", 120*time.Second)
	v.SetDefault("runtime.down_timeout", 60*time.Second)
	v.SetDefault("runtime.ps_timeout", 15*time.Second)
	v.SetDefault("runtime.logs_timeout", 30*time.Second)

	v.SetDefault("health.default_timeout", 5*time.Second)
	v.SetDefault("health.poll_interval", 30*time.Second)
	v.SetDefault("health.rewrite_localhost", "")
	v.SetDefault("health.concurrency", 4)

	v.SetDefault("journal.dsn", "file:service-nanny?mode=memory&cache=shared")
	v.SetDefault("journal.retain", 1000)
}

/**
 * Load application configuration
 * @param {viper.Viper} v - Viper instance, flags may already be bound to it
 * @param {string} path - Explicit config file, empty searches ./ and the nanny dir
 * @returns {AppConfig} Returns the merged configuration (defaults < file < env < flags)
 * @description
 * - A missing config file is not an error, every key has a default
 * - SERVICE_NANNY_<SECTION>_<KEY> overrides any key
 * - SERVICES_DIR is honored for services.dir
 */
func Load(v *viper.Viper, path string) (*AppConfig, error) {
	SetDefaults(v)
	v.SetEnvPrefix("SERVICE_NANNY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("services.dir", "SERVICE_NANNY_SERVICES_DIR", "SERVICES_DIR"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(env.NannyDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Services.Dir == "" {
		return fmt.Errorf("services.dir must not be empty")
	}
	if c.Runtime.Command == "" {
		return fmt.Errorf("runtime.command must not be empty")
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	for key, d := range map[string]time.Duration{
		"runtime.up_timeout":     c.Runtime.UpTimeout,
		"runtime.down_timeout":   c.Runtime.DownTimeout,
		"runtime.ps_timeout":     c.Runtime.PsTimeout,
		"runtime.logs_timeout":   c.Runtime.LogsTimeout,
		"health.default_timeout": c.Health.DefaultTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Health.Concurrency <= 0 {
		c.Health.Concurrency = 1
	}
	return nil
}
