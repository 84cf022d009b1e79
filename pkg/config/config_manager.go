package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/tamias-ai/tamias/pkg/ctx"
	"gopkg.in/yaml.v3"
)

// Environment keys understood by the allocator.
const (
	KeyConfigPath        = "TAMIAS_CONFIG"
	KeyModel             = "TAMIAS_MODEL"
	KeyContextWindow     = "TAMIAS_CONTEXT_WINDOW"
	KeySystemPromptRatio = "TAMIAS_SYSTEM_PROMPT_RATIO"
	KeyMessageRatio      = "TAMIAS_MESSAGE_RATIO"
	KeyResponseReserve   = "TAMIAS_RESPONSE_RESERVE"
	KeyMinKeep           = "TAMIAS_MIN_KEEP"
)

// DefaultConfigPath is where the YAML config file lives unless TAMIAS_CONFIG says otherwise.
const DefaultConfigPath = "~/.tamias/config.yaml"

// DefaultModel is used when neither env nor file names a model.
const DefaultModel = "claude-sonnet-4"

// AllocatorConfig is the merged configuration of the context budget allocator.
type AllocatorConfig struct {
	Model             string  `yaml:"model"`
	ContextWindow     int     `yaml:"context_window"` // 0 = look up from model
	SystemPromptRatio float64 `yaml:"system_prompt_ratio"`
	MessageRatio      float64 `yaml:"message_ratio"`
	ResponseReserve   int     `yaml:"response_reserve"`
	MinKeep           *int    `yaml:"min_keep"`
}

// Budget returns the budget derivation knobs.
func (c AllocatorConfig) Budget() ctx.BudgetConfig {
	return ctx.BudgetConfig{
		SystemPromptRatio: c.SystemPromptRatio,
		MessageRatio:      c.MessageRatio,
		ResponseReserve:   c.ResponseReserve,
	}
}

// KeepAtLeast returns the configured minKeep, or ctx.DefaultMinKeep when unset.
func (c AllocatorConfig) KeepAtLeast() int {
	if c.MinKeep == nil {
		return ctx.DefaultMinKeep
	}
	return *c.MinKeep
}

// fileConfig mirrors the YAML file layout.
type fileConfig struct {
	Allocator AllocatorConfig `yaml:"allocator"`
}

// Manager provides configuration management functionality
type Manager interface {
	GetString(key string) (string, error)
	GetStringWithDefault(key, defaultValue string) string
	GetInt(key string) (int, error)
	GetIntWithDefault(key string, defaultValue int) int
	GetFloatWithDefault(key string, defaultValue float64) float64
	GetAllocatorConfig() AllocatorConfig
}

// DefaultManager reads the process environment first and falls back to the
// values loaded from the YAML config file.
type DefaultManager struct {
	file fileConfig
}

// NewConfigManager loads ./.env (without overriding the environment) and the
// YAML config file. Missing files are not an error; malformed ones are.
func NewConfigManager() (*DefaultManager, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return NewConfigManagerFromFile(path)
}

// NewConfigManagerFromFile builds a manager backed by the YAML file at path.
func NewConfigManagerFromFile(path string) (*DefaultManager, error) {
	m := &DefaultManager{}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &m.file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return m, nil
}

// ConfigPath resolves the config file location, expanding a leading ~.
func ConfigPath() (string, error) {
	path := os.Getenv(KeyConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}
	return expanded, nil
}

// GetString gets a configuration value by key, returns error if not found
func (m *DefaultManager) GetString(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("configuration key %s not found", key)
	}
	return value, nil
}

// GetStringWithDefault gets a configuration value by key, returns default if not found
func (m *DefaultManager) GetStringWithDefault(key, defaultValue string) string {
	value, err := m.GetString(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetInt gets an integer configuration value by key, returns error if not found or invalid
func (m *DefaultManager) GetInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("configuration key %s not found", key)
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("configuration key %s has invalid integer value: %s", key, value)
	}
	return intValue, nil
}

// GetIntWithDefault gets an integer configuration value by key, returns default if not found or invalid
func (m *DefaultManager) GetIntWithDefault(key string, defaultValue int) int {
	intValue, err := m.GetInt(key)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// GetFloatWithDefault gets a float configuration value by key, returns default if not found or invalid
func (m *DefaultManager) GetFloatWithDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// GetAllocatorConfig merges defaults, the config file and the environment, in
// increasing order of precedence.
func (m *DefaultManager) GetAllocatorConfig() AllocatorConfig {
	file := m.file.Allocator

	cfg := AllocatorConfig{
		Model:             m.GetStringWithDefault(KeyModel, orString(file.Model, DefaultModel)),
		ContextWindow:     m.GetIntWithDefault(KeyContextWindow, file.ContextWindow),
		SystemPromptRatio: m.GetFloatWithDefault(KeySystemPromptRatio, orFloat(file.SystemPromptRatio, ctx.DefaultSystemPromptRatio)),
		MessageRatio:      m.GetFloatWithDefault(KeyMessageRatio, orFloat(file.MessageRatio, ctx.DefaultMessageRatio)),
		ResponseReserve:   m.GetIntWithDefault(KeyResponseReserve, orInt(file.ResponseReserve, ctx.DefaultResponseReserve)),
	}

	minKeep := ctx.DefaultMinKeep
	if file.MinKeep != nil {
		minKeep = *file.MinKeep
	}
	minKeep = m.GetIntWithDefault(KeyMinKeep, minKeep)
	cfg.MinKeep = &minKeep

	return cfg
}

func orString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func orFloat(value, fallback float64) float64 {
	if value == 0 {
		return fallback
	}
	return value
}

func orInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
