package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Geometry cache backends
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"

	// Log formats
	LogFormatConsole = "console"
	LogFormatJSON    = "json"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultAPIURL      = "http://127.0.0.1:8000"
	DefaultTimeout     = 30 * time.Second
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultZoomMin     = 0.25
	DefaultZoomMax     = 3.0
	DefaultZoomStep    = 1.25
	DefaultFitPadding  = 40.0
	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultCacheTTL    = 24 * time.Hour
	DefaultSessionTTL  = 2 * time.Hour

	envPrefix = "FIELD_BUILDER"
)

// Config holds all configuration for the field builder
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Template API
	APIURL   string
	APIToken string
	Timeout  time.Duration

	// Editor
	ZoomMin    float64
	ZoomMax    float64
	ZoomStep   float64
	FitPadding float64
	SessionTTL time.Duration

	// Geometry cache
	Cache         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	LogFormat   string
	MaxFileSize int64 // Maximum PDF size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:        ModeStdio, // MCP clients launch the binary over stdio
		Host:        DefaultHost,
		Port:        DefaultPort,
		APIURL:      DefaultAPIURL,
		Timeout:     DefaultTimeout,
		ZoomMin:     DefaultZoomMin,
		ZoomMax:     DefaultZoomMax,
		ZoomStep:    DefaultZoomStep,
		FitPadding:  DefaultFitPadding,
		SessionTTL:  DefaultSessionTTL,
		Cache:       CacheMemory,
		RedisAddr:   DefaultRedisAddr,
		CacheTTL:    DefaultCacheTTL,
		Version:     "1.0.0",
		ServerName:  "pdf-field-builder",
		LogLevel:    DefaultLogLevel,
		LogFormat:   LogFormatConsole,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
// Values come from, in increasing priority: defaults, a .env file in the
// working directory, FIELD_BUILDER_* environment variables and flags.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	// A missing .env file is fine
	_ = godotenv.Load()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("api-url", cfg.APIURL)
	viper.SetDefault("api-token", cfg.APIToken)
	viper.SetDefault("timeout", cfg.Timeout)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("logformat", cfg.LogFormat)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("zoom-min", cfg.ZoomMin)
	viper.SetDefault("zoom-max", cfg.ZoomMax)
	viper.SetDefault("zoom-step", cfg.ZoomStep)
	viper.SetDefault("fit-padding", cfg.FitPadding)
	viper.SetDefault("cache", cfg.Cache)
	viper.SetDefault("redis-addr", cfg.RedisAddr)
	viper.SetDefault("redis-password", cfg.RedisPassword)
	viper.SetDefault("redis-db", cfg.RedisDB)
	viper.SetDefault("cache-ttl", cfg.CacheTTL)
	viper.SetDefault("session-ttl", cfg.SessionTTL)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("api-url", cfg.APIURL, "Base URL of the template API")
	pflag.String("api-token", cfg.APIToken, "Bearer token for the template API")
	pflag.Duration("timeout", cfg.Timeout, "Timeout for template API requests")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.String("logformat", cfg.LogFormat, "Log format (console, json)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF size in bytes")
	pflag.Float64("zoom-min", cfg.ZoomMin, "Smallest zoom scale")
	pflag.Float64("zoom-max", cfg.ZoomMax, "Largest zoom scale")
	pflag.Float64("zoom-step", cfg.ZoomStep, "Zoom in/out factor")
	pflag.Float64("fit-padding", cfg.FitPadding, "Padding in pixels kept around the page by fit-width and fit-page")
	pflag.String("cache", cfg.Cache, "Page geometry cache: memory, redis or none")
	pflag.String("redis-addr", cfg.RedisAddr, "Redis address (cache=redis)")
	pflag.String("redis-password", cfg.RedisPassword, "Redis password (cache=redis)")
	pflag.Int("redis-db", cfg.RedisDB, "Redis database (cache=redis)")
	pflag.Duration("cache-ttl", cfg.CacheTTL, "Lifetime of cached page geometry")
	pflag.Duration("session-ttl", cfg.SessionTTL, "Idle time after which an editing session is closed")
}

var boundKeys = []string{
	"mode", "host", "port",
	"api-url", "api-token", "timeout",
	"loglevel", "logformat", "maxfilesize",
	"zoom-min", "zoom-max", "zoom-step", "fit-padding",
	"cache", "redis-addr", "redis-password", "redis-db", "cache-ttl",
	"session-ttl",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range boundKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nPDF Field Builder - place fillable fields on PDF templates\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --api-url=https://templates.example.com          "+
			"# MCP over stdio (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --port=8081                        "+
			"# HTTP API and event stream\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --cache=redis --redis-addr=redis:6379\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		for _, key := range boundKeys {
			fmt.Fprintf(os.Stderr, "  %s_%s\n", envPrefix, strings.ToUpper(strings.ReplaceAll(key, "-", "_")))
		}
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.APIURL = viper.GetString("api-url")
	cfg.APIToken = viper.GetString("api-token")
	cfg.Timeout = viper.GetDuration("timeout")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.LogFormat = viper.GetString("logformat")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.ZoomMin = viper.GetFloat64("zoom-min")
	cfg.ZoomMax = viper.GetFloat64("zoom-max")
	cfg.ZoomStep = viper.GetFloat64("zoom-step")
	cfg.FitPadding = viper.GetFloat64("fit-padding")
	cfg.Cache = viper.GetString("cache")
	cfg.RedisAddr = viper.GetString("redis-addr")
	cfg.RedisPassword = viper.GetString("redis-password")
	cfg.RedisDB = viper.GetInt("redis-db")
	cfg.CacheTTL = viper.GetDuration("cache-ttl")
	cfg.SessionTTL = viper.GetDuration("session-ttl")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port range only matters in server mode
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.APIURL == "" {
		return errors.New("API URL cannot be empty")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid API URL: %s (must be an absolute http or https URL)", c.APIURL)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.ZoomMin <= 0 || c.ZoomMax < c.ZoomMin {
		return fmt.Errorf("invalid zoom range: %g to %g", c.ZoomMin, c.ZoomMax)
	}
	if c.ZoomStep <= 1 {
		return errors.New("zoom step must be greater than 1")
	}
	if c.FitPadding < 0 {
		return errors.New("fit padding cannot be negative")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}

	switch c.Cache {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.RedisAddr == "" {
			return errors.New("redis address cannot be empty when cache is redis")
		}
	default:
		return fmt.Errorf("invalid cache: %s (must be one of: memory, redis, none)", c.Cache)
	}
	if c.Cache != CacheNone && c.CacheTTL <= 0 {
		return errors.New("cache TTL must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.LogFormat)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration. The API
// token and the Redis password are never printed.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, APIURL: %s, Cache: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.APIURL, c.Cache, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
