// Package config handles Ember configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (EMBER_*)
//  2. Config file (<config root>/ember/config.yaml)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/musher-dev/ember/internal/paths"
)

// Prompt styles.
const (
	PromptStyleClassic = "classic"
	PromptStyleIPython = "ipython"
)

const (
	// DefaultPromptStyle is the prompt style used when none is configured.
	DefaultPromptStyle = PromptStyleClassic
	// DefaultHistoryMaxEntries bounds the in-memory recall list.
	DefaultHistoryMaxEntries = 1000
	// DefaultHistoryRecall is how many inputs of earlier sessions are offered for recall.
	DefaultHistoryRecall = 200
)

// Keys understood by Ember.
const (
	KeyPromptStyle       = "repl.prompt_style"
	KeyPager             = "repl.pager"
	KeyTitle             = "repl.title"
	KeyStartupFiles      = "repl.startup_files"
	KeyHistoryEnabled    = "history.enabled"
	KeyHistoryMaxEntries = "history.max_entries"
	KeyHistoryRecall     = "history.recall"
)

// PromptStyles lists the supported prompt styles.
func PromptStyles() []string {
	return []string{PromptStyleClassic, PromptStyleIPython}
}

// Config holds the Ember configuration.
type Config struct {
	v    *viper.Viper
	path string
}

// Load reads configuration from all sources using the default config file.
func Load() *Config {
	path, err := paths.ConfigFile()
	if err != nil {
		path = ""
	}

	return LoadFile(path)
}

// LoadFile reads configuration with path as the config file. An empty path
// skips the file.
func LoadFile(path string) *Config {
	v := viper.New()

	v.SetDefault(KeyPromptStyle, DefaultPromptStyle)
	v.SetDefault(KeyPager, true)
	v.SetDefault(KeyTitle, "")
	v.SetDefault(KeyStartupFiles, []string{})
	v.SetDefault(KeyHistoryEnabled, true)
	v.SetDefault(KeyHistoryMaxEntries, DefaultHistoryMaxEntries)
	v.SetDefault(KeyHistoryRecall, DefaultHistoryRecall)

	v.SetEnvPrefix("EMBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		// Read config file (ignore if not found, but warn on other errors)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
			}
		}
	}

	return &Config{v: v, path: path}
}

// Path returns the config file path, or "" when none is used.
func (c *Config) Path() string {
	return c.path
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// IsSet reports whether key has a value from any source, defaults included.
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	if c.path == "" {
		return errors.New("no config file location")
	}

	c.v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}

	return c.v.WriteConfigAs(c.path)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// PromptStyle returns the configured prompt style.
func (c *Config) PromptStyle() string {
	return c.GetString(KeyPromptStyle)
}

// Validate checks values that have a fixed domain.
func (c *Config) Validate() error {
	if style := c.PromptStyle(); !slices.Contains(PromptStyles(), style) {
		return fmt.Errorf("unsupported %s %q", KeyPromptStyle, style)
	}

	return nil
}

// PagerEnabled reports whether long results are paged.
func (c *Config) PagerEnabled() bool {
	return c.GetBool(KeyPager)
}

// Title returns the terminal title for REPL sessions.
func (c *Config) Title() string {
	return c.GetString(KeyTitle)
}

// StartupFiles returns the Starlark files run before the first prompt.
func (c *Config) StartupFiles() []string {
	return c.v.GetStringSlice(KeyStartupFiles)
}

// HistoryEnabled reports whether submissions are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.GetBool(KeyHistoryEnabled)
}

// HistoryMaxEntries returns the recall list bound.
func (c *Config) HistoryMaxEntries() int {
	return c.GetInt(KeyHistoryMaxEntries)
}

// HistoryRecall returns how many earlier inputs seed a new session.
func (c *Config) HistoryRecall() int {
	return c.GetInt(KeyHistoryRecall)
}
