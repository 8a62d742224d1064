// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/groundchat/internal/model"
	"github.com/jeranaias/groundchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete groundchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Backend BackendConfig `toml:"backend" json:"backend"`
	History HistoryConfig `toml:"history" json:"history"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// BackendConfig describes how to reach the chat backend.
type BackendConfig struct {
	BaseURL           string  `toml:"base_url" json:"base_url"`
	AuthToken         string  `toml:"auth_token" json:"auth_token"`
	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs"`
	StreamTimeoutSecs int     `toml:"stream_timeout_secs" json:"stream_timeout_secs"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
}

// History backends.
const (
	HistoryRemote = "remote"
	HistorySQLite = "sqlite"
	HistoryNone   = "none"
)

// HistoryConfig selects where conversations are kept.
type HistoryConfig struct {
	// Backend is one of "remote", "sqlite" or "none".
	Backend          string `toml:"backend" json:"backend"`
	SQLitePath       string `toml:"sqlite_path" json:"sqlite_path"`
	FlushTimeoutSecs int    `toml:"flush_timeout_secs" json:"flush_timeout_secs"`
}

// ChatConfig holds conversation defaults.
type ChatConfig struct {
	Model         string `toml:"model" json:"model"`
	ContextWindow int    `toml:"context_window" json:"context_window"`
	ProductName   string `toml:"product_name" json:"product_name"`
}

// UIConfig contains terminal rendering preferences.
type UIConfig struct {
	Markdown     bool   `toml:"markdown" json:"markdown"`
	GlamourStyle string `toml:"glamour_style" json:"glamour_style"`
	WordWrap     int    `toml:"word_wrap" json:"word_wrap"`
}

// LogConfig controls the request log.
type LogConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
	Debug   bool   `toml:"debug" json:"debug"`
}

// Timeout returns the non-streaming request timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// StreamTimeout returns the header timeout for streaming requests.
func (b BackendConfig) StreamTimeout() time.Duration {
	return time.Duration(b.StreamTimeoutSecs) * time.Second
}

// FlushTimeout returns the bound on a single history write.
func (h HistoryConfig) FlushTimeout() time.Duration {
	return time.Duration(h.FlushTimeoutSecs) * time.Second
}

// ModelType returns the configured model. Validate guarantees it parses.
func (c ChatConfig) ModelType() model.ModelType {
	mt, err := model.ParseModelType(c.Model)
	if err != nil {
		return model.ModelGPT4
	}
	return mt
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			BaseURL:           "http://127.0.0.1:5000",
			TimeoutSecs:       30,
			StreamTimeoutSecs: 120,
			RequestsPerSecond: 2,
			Burst:             4,
		},

		History: HistoryConfig{
			Backend:          HistoryRemote,
			SQLitePath:       "", // resolved to ~/.groundchat/history.db
			FlushTimeoutSecs: 30,
		},

		Chat: ChatConfig{
			Model:         model.ModelGPT4.String(),
			ContextWindow: 6,
			ProductName:   "IDSGPT",
		},

		UI: UIConfig{
			Markdown:     true,
			GlamourStyle: "auto",
			WordWrap:     100,
		},

		Log: LogConfig{
			Enabled: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the groundchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".groundchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// SQLitePath returns the configured history database path, defaulting to
// history.db in the config directory.
func (c *Config) SQLitePath() (string, error) {
	if c.History.SQLitePath != "" {
		return expandHome(c.History.SQLitePath)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ensureSecurePermissions tightens a config file to 0600 since it may hold
// the auth token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Files ending in .json are read as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# groundchat configuration file\n")
	buf.WriteString("# Generated by groundchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.Backend.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, ValidationError{Field: "backend.base_url", Message: fmt.Sprintf("invalid URL: %v", err)})
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, ValidationError{Field: "backend.base_url", Message: "scheme must be http or https"})
	case u.Host == "":
		errs = append(errs, ValidationError{Field: "backend.base_url", Message: "missing host"})
	}

	if c.Backend.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{Field: "backend.timeout_secs", Message: "must be positive"})
	}
	if c.Backend.StreamTimeoutSecs <= 0 {
		errs = append(errs, ValidationError{Field: "backend.stream_timeout_secs", Message: "must be positive"})
	}
	if c.Backend.RequestsPerSecond > 0 && c.Backend.Burst < 1 {
		errs = append(errs, ValidationError{Field: "backend.burst", Message: "must be at least 1 when requests are paced"})
	}

	switch strings.ToLower(c.History.Backend) {
	case HistoryRemote, HistorySQLite, HistoryNone:
	default:
		errs = append(errs, ValidationError{
			Field:   "history.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: remote, sqlite, none", c.History.Backend),
		})
	}
	if c.History.FlushTimeoutSecs <= 0 {
		errs = append(errs, ValidationError{Field: "history.flush_timeout_secs", Message: "must be positive"})
	}

	if _, err := model.ParseModelType(c.Chat.Model); err != nil {
		errs = append(errs, ValidationError{
			Field:   "chat.model",
			Message: fmt.Sprintf("unknown model '%s', must be one of: %s", c.Chat.Model, strings.Join(model.ModelIDs(), ", ")),
		})
	}
	if c.Chat.ContextWindow < 1 {
		errs = append(errs, ValidationError{Field: "chat.context_window", Message: "must be at least 1"})
	}

	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "cannot be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = d.Backend.BaseURL
	}
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}
	if c.Backend.StreamTimeoutSecs == 0 {
		c.Backend.StreamTimeoutSecs = d.Backend.StreamTimeoutSecs
	}
	if c.History.Backend == "" {
		c.History.Backend = d.History.Backend
	}
	c.History.Backend = strings.ToLower(c.History.Backend)
	if c.History.FlushTimeoutSecs == 0 {
		c.History.FlushTimeoutSecs = d.History.FlushTimeoutSecs
	}
	if c.Chat.Model == "" {
		c.Chat.Model = d.Chat.Model
	}
	if c.Chat.ContextWindow == 0 {
		c.Chat.ContextWindow = d.Chat.ContextWindow
	}
	if c.Chat.ProductName == "" {
		c.Chat.ProductName = d.Chat.ProductName
	}
	if c.UI.GlamourStyle == "" {
		c.UI.GlamourStyle = d.UI.GlamourStyle
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GROUNDCHAT_BASE_URL: overrides backend.base_url
//   - GROUNDCHAT_AUTH_TOKEN: overrides backend.auth_token
//   - GROUNDCHAT_HISTORY: overrides history.backend (remote, sqlite, none)
//   - GROUNDCHAT_MODEL: overrides chat.model
//   - GROUNDCHAT_DEBUG: set to "1" or "true" to log stream fragments
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("GROUNDCHAT_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("GROUNDCHAT_AUTH_TOKEN"); v != "" {
		c.Backend.AuthToken = v
	}
	if v := os.Getenv("GROUNDCHAT_HISTORY"); v != "" {
		c.History.Backend = v
	}
	if v := os.Getenv("GROUNDCHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("GROUNDCHAT_DEBUG"); v != "" {
		c.Log.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "history.backend").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(strVal == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as JSON with the auth token redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Backend.AuthToken != "" {
		safe.Backend.AuthToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
