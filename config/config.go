// Package config loads textlsp settings from defaults, an optional config
// file, the environment and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corymhall/textlsp/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file name, without extension.
	FileName = "textlsp"
	// EnvPrefix prefixes environment overrides, e.g. TEXTLSP_LOG_LEVEL.
	EnvPrefix = "TEXTLSP"
)

// Config represents the textlsp configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	References ReferencesConfig `mapstructure:"references"`

	v  *viper.Viper
	mu sync.Mutex
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ReferencesConfig represents find-references configuration
type ReferencesConfig struct {
	Extension string `mapstructure:"extension"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"logfile":   "log.file",
	"extension": "references.extension",
}

type options struct {
	paths []string
}

// Option configures Load.
type Option func(*options)

// WithSearchPaths replaces the directories searched for the config file.
func WithSearchPaths(paths ...string) Option {
	return func(o *options) { o.paths = paths }
}

// DefaultSearchPaths returns the working directory and the user config
// directory for textlsp.
func DefaultSearchPaths() []string {
	paths := []string{"."}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		paths = append(paths, filepath.Join(dir, FileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", FileName))
	}
	return paths
}

// Load loads the configuration. flags may be nil; flags that are present are
// bound to their keys and win over every other source once set.
func Load(flags *pflag.FlagSet, opts ...Option) (*Config, error) {
	o := options{paths: DefaultSearchPaths()}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("references.extension", ".txt")

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, p := range o.paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	cfg := &Config{v: v}
	if err := cfg.decode(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode() error {
	if err := c.v.Unmarshal(c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return c.validate()
}

// validate validates the configuration
func (c *Config) validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if strings.TrimPrefix(c.References.Extension, ".") == "" {
		return fmt.Errorf("references.extension must not be empty")
	}
	return nil
}

// FileUsed returns the config file that was read, or "" if none was found.
func (c *Config) FileUsed() string {
	return c.v.ConfigFileUsed()
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() slog.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	// validated by Load
	level, _ := logger.ParseLevel(c.Log.Level)
	return level
}

// OnChange watches the config file, if one was read, and calls fn with the
// reloaded configuration whenever it changes. Invalid edits are reported to
// fn as an error and leave the previous values in place.
func (c *Config) OnChange(fn func(*Config, error)) bool {
	if c.FileUsed() == "" {
		return false
	}
	c.v.OnConfigChange(func(fsnotify.Event) {
		c.mu.Lock()
		prev := c.snapshot()
		err := c.decode()
		if err != nil {
			c.restore(prev)
		}
		c.mu.Unlock()
		fn(c, err)
	})
	c.v.WatchConfig()
	return true
}

type values struct {
	log        LogConfig
	references ReferencesConfig
}

func (c *Config) snapshot() values {
	return values{log: c.Log, references: c.References}
}

func (c *Config) restore(prev values) {
	c.Log = prev.log
	c.References = prev.references
}
