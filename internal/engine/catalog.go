package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

//go:embed catalog_schema.json
var catalogSchemaJSON string

// CatalogEntry describes one action in the catalog file.
type CatalogEntry struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Enabled  *bool    `yaml:"enabled"`
	Command  []string `yaml:"command"`
	Timeout  string   `yaml:"timeout"`
}

// IsEnabled returns the entry's enabled flag, defaulting to true.
func (e CatalogEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// CommandTimeout parses Timeout, returning 0 when unset or invalid.
func (e CatalogEntry) CommandTimeout() time.Duration {
	if e.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Catalog is the YAML root structure listing available actions.
type Catalog struct {
	Actions []CatalogEntry `yaml:"actions"`
	// Disable holds glob patterns; matching actions are registered disabled.
	Disable []string `yaml:"disable"`
}

// DefaultCatalog returns the built-in action set in its tuned priority order.
func DefaultCatalog() *Catalog {
	off := false
	return &Catalog{
		Actions: []CatalogEntry{
			{Name: "enhanced_keyboard", Priority: 1},
			{Name: "mouse_swipe_up", Priority: 2},
			{Name: "combination_method", Priority: 3},
			{Name: "mouse_click_next", Priority: 4},
			{Name: "external_macro", Priority: 5, Enabled: &off},
		},
	}
}

// LoadCatalog reads and validates a catalog file. An empty path or a missing
// file yields the default catalog.
func LoadCatalog(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("catalog file not found, using defaults", slog.String("path", path))
			return DefaultCatalog(), nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog data and validates it against the
// catalog schema.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validateCatalog(raw); err != nil {
		return nil, err
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, pattern := range cat.Disable {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("catalog: invalid disable pattern %q", pattern)
		}
	}
	return &cat, nil
}

// Register adds every catalog entry to reg. bind resolves the executor for an
// entry; a nil executor fails registration with ErrUnknownAction.
func (c *Catalog) Register(reg *Registry, bind func(CatalogEntry) Executor) error {
	for _, entry := range c.Actions {
		action := models.Action{
			Name:     entry.Name,
			Priority: entry.Priority,
			Enabled:  entry.IsEnabled() && !c.disabled(entry.Name),
		}
		if err := reg.Register(action, bind(entry)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) disabled(name string) bool {
	for _, pattern := range c.Disable {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func validateCatalog(raw any) error {
	schema, err := compileCatalogSchema()
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}
	// Round-trip through JSON so numbers reach the validator as json.Number.
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}

func compileCatalogSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("catalog.json", strings.NewReader(catalogSchemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("catalog.json")
}
