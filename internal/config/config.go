package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. POOLCOACH_BACKEND_NAME
const EnvPrefix = "POOLCOACH"

// Config holds the application configuration
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

// BackendConfig selects and configures the vision backend
type BackendConfig struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PreprocessConfig holds configuration for photo preprocessing
type PreprocessConfig struct {
	MaxDimension int     `mapstructure:"max_dimension"`
	Quality      float64 `mapstructure:"quality"`
	Format       string  `mapstructure:"format"`
	MinDimension int     `mapstructure:"min_dimension"`
	MaxPixels    int     `mapstructure:"max_pixels"`
}

// ServerConfig holds configuration for the HTTP API
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// LogConfig selects the logger flavour: release or debug
type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// Supported backend names
const (
	BackendGemini   = "gemini"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.name", BackendGemini)
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.model", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 120*time.Second)

	v.SetDefault("preprocess.max_dimension", 1024)
	v.SetDefault("preprocess.quality", 0.8)
	v.SetDefault("preprocess.format", "jpeg")
	v.SetDefault("preprocess.min_dimension", 0)
	v.SetDefault("preprocess.max_pixels", 50_000_000)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.max_upload_bytes", 20*1024*1024)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.session_ttl", 30*time.Minute)

	v.SetDefault("log.mode", "release")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Also accept the usual Gemini key variables
	_ = v.BindEnv("backend.api_key", EnvPrefix+"_BACKEND_API_KEY", "GEMINI_API_KEY", "API_KEY")
	return v
}

// Default returns a configuration with default values and no overrides
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not unmarshal: %v", err))
	}
	return &cfg
}

// Load reads configuration from path (YAML, JSON or TOML by extension),
// applies defaults and environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadDefaultPath loads GetConfigPath if it exists, else defaults plus env
func LoadDefaultPath() (*Config, error) {
	path := GetConfigPath()
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	return Load(path)
}

// SaveToFile writes the configuration to filename; the format follows the
// file extension. The API key is never written.
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.Set("backend.name", c.Backend.Name)
	v.Set("backend.url", c.Backend.URL)
	v.Set("backend.model", c.Backend.Model)
	v.Set("backend.timeout", c.Backend.Timeout.String())
	v.Set("preprocess.max_dimension", c.Preprocess.MaxDimension)
	v.Set("preprocess.quality", c.Preprocess.Quality)
	v.Set("preprocess.format", c.Preprocess.Format)
	v.Set("preprocess.min_dimension", c.Preprocess.MinDimension)
	v.Set("preprocess.max_pixels", c.Preprocess.MaxPixels)
	v.Set("server.addr", c.Server.Addr)
	v.Set("server.mode", c.Server.Mode)
	v.Set("server.read_timeout", c.Server.ReadTimeout.String())
	v.Set("server.write_timeout", c.Server.WriteTimeout.String())
	v.Set("server.max_upload_bytes", c.Server.MaxUploadBytes)
	v.Set("server.allowed_origins", c.Server.AllowedOrigins)
	v.Set("server.session_ttl", c.Server.SessionTTL.String())
	v.Set("log.mode", c.Log.Mode)

	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend.Name {
	case BackendGemini:
		if strings.TrimSpace(c.Backend.APIKey) == "" {
			return fmt.Errorf("backend.api_key is required for gemini (or set GEMINI_API_KEY)")
		}
	case BackendOllama, BackendLlamaCpp:
	default:
		return fmt.Errorf("backend.name must be one of gemini, ollama, llamacpp; got %q", c.Backend.Name)
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}

	if c.Preprocess.Quality <= 0 || c.Preprocess.Quality > 1 {
		return fmt.Errorf("preprocess.quality must be in (0, 1]")
	}

	if c.Preprocess.Format != "jpeg" && c.Preprocess.Format != "webp" {
		return fmt.Errorf("preprocess.format must be jpeg or webp")
	}

	if c.Preprocess.MinDimension < 0 {
		return fmt.Errorf("preprocess.min_dimension must not be negative")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "pool-coach", "config.yaml")
}
