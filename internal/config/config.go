package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	SourceDirectory string            `mapstructure:"source_directory"`
	TargetDirectory *string           `mapstructure:"target_directory"`
	Compression     CompressionConfig `mapstructure:"compression"`
	Filter          FilterConfig      `mapstructure:"filter"`
	Security        SecurityConfig    `mapstructure:"security"`
	History         HistoryConfig     `mapstructure:"history"`
	Logging         LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains the gifsicle invocation settings
type CompressionConfig struct {
	OptimizeLevel int  `mapstructure:"optimize_level"` // 1-3
	Lossy         int  `mapstructure:"lossy"`          // 0-200
	Colors        int  `mapstructure:"colors"`         // 2-256
	SkipLarger    bool `mapstructure:"skip_larger"`    // keep original when output is not smaller
}

// FilterConfig restricts which files are processed
type FilterConfig struct {
	After     string `mapstructure:"after"`      // unix ts, YYYY-MM-DD, or YYYY-MM-DD HH:MM:SS
	TimeField string `mapstructure:"time_field"` // mtime or ctime
}

// SecurityConfig contains safety settings
type SecurityConfig struct {
	DryRun         bool `mapstructure:"dry_run"`
	MaxFilesPerRun int  `mapstructure:"max_files_per_run"` // 0 means no limit
}

// HistoryConfig contains the optional sqlite history store settings
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SourceDirectory: ".",
		Compression: CompressionConfig{
			OptimizeLevel: 3,
			Lossy:         80,
			Colors:        256,
			SkipLarger:    false,
		},
		Filter: FilterConfig{
			After:     "",
			TimeField: "mtime",
		},
		Security: SecurityConfig{
			DryRun:         false,
			MaxFilesPerRun: 0,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "gif-squeeze.db",
		},
		Logging: LoggingConfig{
			Level:      "error",
			FilePath:   "error.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.gif-squeeze")
		viper.AddConfigPath("/etc/gif-squeeze")
	}

	// Enable environment variable support
	viper.SetEnvPrefix("GIF_SQUEEZE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Unmarshal config
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate and normalize config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SourceDirectory == "" {
		return fmt.Errorf("source_directory is required")
	}

	if !isValidPath(c.SourceDirectory) {
		return fmt.Errorf("source_directory does not exist or is not accessible: %s", c.SourceDirectory)
	}

	if c.TargetDirectory != nil && *c.TargetDirectory != "" {
		if !isValidPath(*c.TargetDirectory) {
			return fmt.Errorf("target_directory does not exist or is not accessible: %s", *c.TargetDirectory)
		}
	}

	if c.Compression.OptimizeLevel < 1 || c.Compression.OptimizeLevel > 3 {
		return fmt.Errorf("invalid optimize_level: %d (valid: 1-3)", c.Compression.OptimizeLevel)
	}
	if c.Compression.Lossy < 0 || c.Compression.Lossy > 200 {
		return fmt.Errorf("invalid lossy value: %d (valid: 0-200)", c.Compression.Lossy)
	}
	if c.Compression.Colors < 2 || c.Compression.Colors > 256 {
		return fmt.Errorf("invalid colors value: %d (valid: 2-256)", c.Compression.Colors)
	}

	validTimeFields := map[string]bool{
		"mtime": true,
		"ctime": true,
	}
	if !validTimeFields[c.Filter.TimeField] {
		return fmt.Errorf("invalid time_field: %s (valid: mtime, ctime)", c.Filter.TimeField)
	}

	if c.Filter.After != "" {
		if _, err := ParseAfter(c.Filter.After); err != nil {
			return fmt.Errorf("invalid after value: %w", err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// GetTargetDirectory returns the target directory or source directory if target is not set
func (c *Config) GetTargetDirectory() string {
	if c.TargetDirectory != nil && *c.TargetDirectory != "" {
		return *c.TargetDirectory
	}
	return c.SourceDirectory
}

// IsInPlace returns true if files are replaced in the source directory
func (c *Config) IsInPlace() bool {
	return c.TargetDirectory == nil || *c.TargetDirectory == "" ||
		*c.TargetDirectory == c.SourceDirectory
}

// AfterThreshold returns the parsed time filter threshold, or the zero time
// when no filter is configured
func (c *Config) AfterThreshold() (time.Time, error) {
	if c.Filter.After == "" {
		return time.Time{}, nil
	}
	return ParseAfter(c.Filter.After)
}

// afterFormats are the accepted date layouts for the after filter
var afterFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseAfter parses a time threshold given as a unix timestamp, a date, or a
// date-time string in the local time zone
func ParseAfter(value string) (time.Time, error) {
	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(ts, 0), nil
	}

	for _, layout := range afterFormats {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse %q (expected unix timestamp, YYYY-MM-DD, or YYYY-MM-DD HH:MM:SS)", value)
}

// Helper functions

func isValidPath(path string) bool {
	if path == "" {
		return false
	}

	expandedPath := os.ExpandEnv(path)
	if strings.HasPrefix(expandedPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return false
		}
		expandedPath = filepath.Join(home, expandedPath[1:])
	}

	stat, err := os.Stat(expandedPath)
	return err == nil && stat.IsDir()
}
