// Package manifest loads allocator inputs from disk: tier manifests written
// in YAML and chat logs stored as JSON.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/tamias-ai/tamias/pkg/ctx"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk description of a set of tiers.
type Manifest struct {
	Tiers []TierSpec `yaml:"tiers"`
}

// TierSpec describes one tier. Exactly one of Content or File supplies the body.
type TierSpec struct {
	Name       string        `yaml:"name"`
	Priority   int           `yaml:"priority"`
	Trimmable  bool          `yaml:"trimmable"`
	Content    string        `yaml:"content"`
	File       string        `yaml:"file"`
	MinContent string        `yaml:"min_content"`
	SoftTrim   *SoftTrimSpec `yaml:"soft_trim"`
}

// SoftTrimSpec derives MinContent by keeping Head and Tail characters of the
// body, capped to Budget tokens.
type SoftTrimSpec struct {
	Head   int `yaml:"head"`
	Tail   int `yaml:"tail"`
	Budget int `yaml:"budget"`
}

var (
	ErrDuplicateTier = errors.New("duplicate tier name")
	ErrInvalidTier   = errors.New("invalid tier")
)

// LoadTiers reads the manifest at path and resolves it into tiers.
// Relative file references are resolved against the manifest's directory.
func LoadTiers(path string) ([]ctx.ContentTier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return ParseTiers(data, filepath.Dir(path))
}

// ParseTiers decodes manifest YAML and resolves file references against baseDir.
func ParseTiers(data []byte, baseDir string) ([]ctx.ContentTier, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	seen := make(map[string]bool, len(m.Tiers))
	tiers := make([]ctx.ContentTier, 0, len(m.Tiers))
	for i, spec := range m.Tiers {
		tier, err := spec.resolve(baseDir)
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		if seen[tier.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTier, tier.Name)
		}
		seen[tier.Name] = true
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

func (s TierSpec) resolve(baseDir string) (ctx.ContentTier, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ctx.ContentTier{}, fmt.Errorf("%w: missing name", ErrInvalidTier)
	}
	if s.Content != "" && s.File != "" {
		return ctx.ContentTier{}, fmt.Errorf("%w: %s sets both content and file", ErrInvalidTier, name)
	}

	content := s.Content
	if s.File != "" {
		body, err := readTierFile(s.File, baseDir)
		if err != nil {
			return ctx.ContentTier{}, fmt.Errorf("tier %s: %w", name, err)
		}
		content = body
	}

	tier := ctx.ContentTier{
		Name:       name,
		Content:    content,
		Priority:   s.Priority,
		Trimmable:  s.Trimmable,
		MinContent: s.MinContent,
	}

	if s.SoftTrim != nil {
		if s.MinContent != "" {
			return ctx.ContentTier{}, fmt.Errorf("%w: %s sets both min_content and soft_trim", ErrInvalidTier, name)
		}
		tier = tier.WithFallback(ctx.NewSoftTrimStrategy(s.SoftTrim.Head, s.SoftTrim.Tail), s.SoftTrim.Budget)
	}

	return tier, nil
}

func readTierFile(file, baseDir string) (string, error) {
	path, err := homedir.Expand(file)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", file, err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// LoadMessages decodes a JSON array of {"role", "content"} objects.
// Content may be a string or any structured JSON value.
func LoadMessages(r io.Reader) ([]ctx.ChatMessage, error) {
	var messages []ctx.ChatMessage
	if err := json.NewDecoder(r).Decode(&messages); err != nil {
		if errors.Is(err, io.EOF) {
			return []ctx.ChatMessage{}, nil
		}
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if messages == nil {
		messages = []ctx.ChatMessage{}
	}
	return messages, nil
}

// LoadMessagesFile is LoadMessages over the file at path.
func LoadMessagesFile(path string) ([]ctx.ChatMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open messages %s: %w", path, err)
	}
	defer f.Close()
	return LoadMessages(f)
}
