package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override secrets from the config file.
const (
	EnvTMDBAPIKey    = "REEL_TMDB_API_KEY"
	EnvTMDBReadToken = "REEL_TMDB_READ_TOKEN"
	EnvStoragePath   = "REEL_STORAGE_PATH"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	TMDB    TMDBConfig    `toml:"tmdb"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Export  ExportConfig  `toml:"export"`
}

// TMDBConfig contains metadata provider credentials and client settings.
type TMDBConfig struct {
	APIKey       string   `toml:"api_key"`
	ReadToken    string   `toml:"read_token"`
	BaseURL      string   `toml:"base_url"`
	ImageBaseURL string   `toml:"image_base_url"`
	Language     string   `toml:"language"`
	RateLimit    float64  `toml:"rate_limit"`
	Retries      uint     `toml:"retries"`
	Timeout      Duration `toml:"timeout"`
}

// StorageConfig selects the persistence backend for collections, ratings and the session.
type StorageConfig struct {
	Driver       string   `toml:"driver"` // sqlite, file or memory
	Path         string   `toml:"path"`
	PollInterval Duration `toml:"poll_interval"`
	QuotaBytes   int      `toml:"quota_bytes"`
	MaxOpenConns int      `toml:"max_open_conns"`
	MaxIdleConns int      `toml:"max_idle_conns"`
	Lock         bool     `toml:"lock"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// ExportConfig contains defaults for the export command.
type ExportConfig struct {
	Format    string  `toml:"format"`
	OutputDir string  `toml:"output_dir"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// Duration wraps [time.Duration] so it can be written as "500ms" or "2s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads the given dotenv files (missing files are ignored) and overrides
// secrets in config with REEL_* environment variables.
func ApplyEnv(config *Config, files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	if v := os.Getenv(EnvTMDBAPIKey); v != "" {
		config.TMDB.APIKey = v
	}
	if v := os.Getenv(EnvTMDBReadToken); v != "" {
		config.TMDB.ReadToken = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		config.Storage.Path = v
	}
}
