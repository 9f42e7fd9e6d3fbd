package db

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codr1/tidyquote/internal/fields"
	"github.com/codr1/tidyquote/internal/formula"
	"github.com/codr1/tidyquote/internal/models"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedCatalogue is a full pricing configuration loaded from YAML.
type SeedCatalogue struct {
	FieldConfigs     []models.FieldConfig     `yaml:"field_configs"`
	CategoryDefaults []models.CategoryDefault `yaml:"category_defaults"`
	SchedulingRules  []models.SchedulingRule  `yaml:"scheduling_rules"`
	Formulas         []models.Formula         `yaml:"-"`
}

type seedFile struct {
	SeedCatalogue `yaml:",inline"`
	Formulas      []seedFormula `yaml:"formulas"`
}

type seedFormula struct {
	Name       string            `yaml:"name"`
	ResultType models.ResultType `yaml:"result_type"`
	Source     string            `yaml:"source"`
	Active     bool              `yaml:"active"`
}

// LoadSeedCatalogue parses the embedded default catalogue.
func LoadSeedCatalogue() (*SeedCatalogue, error) {
	return ParseSeed(bytes.NewReader(seedYAML))
}

// ParseSeed reads a catalogue and validates every entry. Formula sources are
// converted to element lists.
func ParseSeed(r io.Reader) (*SeedCatalogue, error) {
	var file seedFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode seed catalogue: %w", err)
	}

	cat := file.SeedCatalogue
	for i, cfg := range cat.FieldConfigs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid field config %d (%s/%s): %w", i, cfg.Category, cfg.Option, err)
		}
		if err := fields.ValidateCategory(cfg.Category); err != nil {
			return nil, fmt.Errorf("invalid field config %d (%s/%s): %w", i, cfg.Category, cfg.Option, err)
		}
	}
	for i, d := range cat.CategoryDefaults {
		if strings.TrimSpace(d.Category) == "" {
			return nil, fmt.Errorf("category default %d: category is required", i)
		}
	}
	for i, rule := range cat.SchedulingRules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid scheduling rule %d (%s): %w", i, rule.Label, err)
		}
	}

	seen := make(map[string]bool, len(file.Formulas))
	for _, sf := range file.Formulas {
		if seen[sf.Name] {
			return nil, fmt.Errorf("duplicate formula %q", sf.Name)
		}
		seen[sf.Name] = true

		elements, err := formula.Elements(sf.Source)
		if err != nil {
			return nil, fmt.Errorf("formula %q: %w", sf.Name, err)
		}
		f := models.Formula{
			Name:       strings.TrimSpace(sf.Name),
			ResultType: sf.ResultType,
			Elements:   elements,
			IsActive:   sf.Active,
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("invalid formula %q: %w", sf.Name, err)
		}
		cat.Formulas = append(cat.Formulas, f)
	}
	return &cat, nil
}

// ApplySeed writes cat in one transaction. Field configs, category defaults
// and formulas are upserted by their natural keys; scheduling rules have none
// and are replaced.
func (db *DB) ApplySeed(ctx context.Context, cat *SeedCatalogue) error {
	return db.RunInTx(ctx, func(tx *DB) error {
		for _, cfg := range cat.FieldConfigs {
			if _, err := tx.Queries.UpsertFieldConfig(ctx, cfg); err != nil {
				return fmt.Errorf("upsert field config %s/%s: %w", cfg.Category, cfg.Option, err)
			}
		}
		for _, d := range cat.CategoryDefaults {
			if err := tx.Queries.UpsertCategoryDefault(ctx, d); err != nil {
				return fmt.Errorf("upsert category default %s: %w", d.Category, err)
			}
		}
		if err := tx.Queries.DeleteSchedulingRules(ctx); err != nil {
			return fmt.Errorf("clear scheduling rules: %w", err)
		}
		for _, rule := range cat.SchedulingRules {
			if _, err := tx.Queries.CreateSchedulingRule(ctx, rule); err != nil {
				return fmt.Errorf("create scheduling rule %s: %w", rule.Label, err)
			}
		}
		for _, f := range cat.Formulas {
			if _, err := tx.Queries.UpsertFormulaByName(ctx, f); err != nil {
				return fmt.Errorf("upsert formula %s: %w", f.Name, err)
			}
		}
		return nil
	})
}
