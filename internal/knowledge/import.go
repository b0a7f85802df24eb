package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/storage"
)

// ErrInvalidEntry is returned when an imported entry lacks a category, key
// or value.
var ErrInvalidEntry = errors.New("invalid knowledge entry")

// Entry is the import representation of a knowledge fact. Active defaults
// to true when omitted.
type Entry struct {
	Category string `json:"category" yaml:"category" toml:"category"`
	Key      string `json:"key" yaml:"key" toml:"key"`
	Value    string `json:"value" yaml:"value" toml:"value"`
	Priority int    `json:"priority" yaml:"priority" toml:"priority"`
	Active   *bool  `json:"active,omitempty" yaml:"active,omitempty" toml:"active,omitempty"`
}

type importFile struct {
	Entries []Entry `json:"entries" yaml:"entries" toml:"entries"`
}

// Parse decodes entries in the given format: "json", "yaml" or "toml".
// JSON input may be either a bare array or an object with an entries list.
func Parse(data []byte, format string) ([]Entry, error) {
	var f importFile
	switch strings.ToLower(format) {
	case "json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &f.Entries); err != nil {
				return nil, fmt.Errorf("parse json: %w", err)
			}
		} else if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
	return f.Entries, nil
}

// ParseFile reads entries from a file, choosing the format by extension.
func ParseFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	return Parse(data, format)
}

// Validate checks every entry before anything is written.
func Validate(entries []Entry) error {
	for i, e := range entries {
		if strings.TrimSpace(e.Category) == "" || strings.TrimSpace(e.Key) == "" || strings.TrimSpace(e.Value) == "" {
			return fmt.Errorf("%w: entry %d needs category, key and value", ErrInvalidEntry, i)
		}
	}
	return nil
}

// Import upserts entries for the tenant. Existing (category, key) pairs are
// overwritten. Returns the number of entries written.
func (s *Service) Import(ctx context.Context, tenantID string, entries []Entry) (int, error) {
	if err := Validate(entries); err != nil {
		return 0, err
	}
	written := 0
	for _, e := range entries {
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		_, err := s.store.UpsertKnowledge(ctx, storage.KnowledgeEntry{
			TenantID: tenantID,
			Category: strings.TrimSpace(e.Category),
			Key:      strings.TrimSpace(e.Key),
			Value:    strings.TrimSpace(e.Value),
			Priority: e.Priority,
			Active:   active,
		})
		if err != nil {
			return written, fmt.Errorf("import %s/%s: %w", e.Category, e.Key, err)
		}
		written++
	}
	s.log.WithFields(logging.Fields{"tenant_id": tenantID, "entries": written}).Info("Imported knowledge")
	return written, nil
}
