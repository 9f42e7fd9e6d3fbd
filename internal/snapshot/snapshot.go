// Package snapshot holds the immutable pricing configuration quotes are
// computed against, and replaces it whole when the configuration changes.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/codr1/tidyquote/internal/fields"
	"github.com/codr1/tidyquote/internal/formula"
	"github.com/codr1/tidyquote/internal/models"
)

// Snapshot is one consistent view of field configs, category defaults,
// scheduling rules and validated formulas. It is never mutated after Build.
type Snapshot struct {
	Version  string
	LoadedAt time.Time

	FieldConfigs     []models.FieldConfig
	CategoryDefaults []models.CategoryDefault
	Rules            []models.SchedulingRule
	Formulas         []models.Formula

	Table    *fields.Table
	Defaults *fields.Defaults
	Resolver *fields.Resolver

	fieldNames []string
	known      []string
	compiled   map[string]*formula.Expr
}

// ErrDuplicateFormula rejects an active formula whose name matches an
// already compiled one once normalized.
var ErrDuplicateFormula = errors.New("duplicate formula name")

// Rejection is a formula left out of a snapshot because it failed validation.
type Rejection struct {
	Formula string
	Err     error
}

// Build indexes the configuration and compiles every active formula that
// passes validation. Formulas that fail are returned as rejections and are
// not reachable through the snapshot.
func Build(
	version string,
	loadedAt time.Time,
	configs []models.FieldConfig,
	defaults []models.CategoryDefault,
	rules []models.SchedulingRule,
	formulas []models.Formula,
) (*Snapshot, []Rejection) {
	table := fields.NewTable(configs)
	defs := fields.NewDefaults(defaults)
	fieldNames := fields.KnownFields(configs)

	s := &Snapshot{
		Version:          version,
		LoadedAt:         loadedAt,
		FieldConfigs:     configs,
		CategoryDefaults: defaults,
		Rules:            rules,
		Table:            table,
		Defaults:         defs,
		Resolver:         fields.NewResolver(table, defs),
		fieldNames:       fieldNames,
		known:            KnownNames(configs),
		compiled:         make(map[string]*formula.Expr),
	}

	var rejected []Rejection
	for _, f := range formulas {
		if !f.IsActive {
			continue
		}
		key := fields.Normalize(f.Name)
		if _, dup := s.compiled[key]; dup {
			rejected = append(rejected, Rejection{
				Formula: f.Name,
				Err:     fmt.Errorf("%w: %q is already defined", ErrDuplicateFormula, f.Name),
			})
			continue
		}
		if err := formula.Validate(f.Elements, s.known); err != nil {
			rejected = append(rejected, Rejection{Formula: f.Name, Err: err})
			continue
		}
		expr, err := formula.CompileElements(f.Elements)
		if err != nil {
			rejected = append(rejected, Rejection{Formula: f.Name, Err: err})
			continue
		}
		s.compiled[key] = expr
		s.Formulas = append(s.Formulas, f)
	}
	return s, rejected
}

// Empty returns a snapshot with no configuration. Every field resolves to 0.
func Empty() *Snapshot {
	s, _ := Build("empty", time.Time{}, nil, nil, nil, nil)
	return s
}

// KnownNames returns every name a formula saved against configs may
// reference: the draft fields, the configured categories and the computed
// pipeline quantities.
func KnownNames(configs []models.FieldConfig) []string {
	names := fields.KnownFields(configs)
	return append(names, models.PipelineScalars...)
}

// Formula returns the compiled formula named name.
func (s *Snapshot) Formula(name string) (*formula.Expr, bool) {
	expr, ok := s.compiled[fields.Normalize(name)]
	return expr, ok
}

// HasPipeline reports whether every named pipeline formula compiled.
func (s *Snapshot) HasPipeline() bool {
	for _, name := range models.PipelineFormulas {
		if _, ok := s.Formula(name); !ok {
			return false
		}
	}
	return true
}

// FieldNames returns the field names a formula context is built from.
func (s *Snapshot) FieldNames() []string {
	return s.fieldNames
}

// KnownNames returns the names formulas in this snapshot were validated against.
func (s *Snapshot) KnownNames() []string {
	return s.known
}
