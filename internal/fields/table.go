package fields

import (
	"strings"

	"github.com/codr1/tidyquote/internal/models"
)

// Table is an immutable lookup index over the active field configurations of
// one snapshot. Build it once with NewTable and share it between quotes.
type Table struct {
	byCategory map[string][]models.FieldConfig
	exact      map[string]map[string]models.FieldConfig
}

// NewTable indexes the active configs by normalized category and option.
// When two options normalize to the same key the first one wins.
func NewTable(configs []models.FieldConfig) *Table {
	t := &Table{
		byCategory: make(map[string][]models.FieldConfig),
		exact:      make(map[string]map[string]models.FieldConfig),
	}
	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}
		category := Normalize(cfg.Category)
		t.byCategory[category] = append(t.byCategory[category], cfg)

		options := t.exact[category]
		if options == nil {
			options = make(map[string]models.FieldConfig)
			t.exact[category] = options
		}
		option := Normalize(cfg.Option)
		if _, exists := options[option]; !exists {
			options[option] = cfg
		}
	}
	return t
}

// Lookup finds the config for option within category, trying an exact
// normalized match, then a numeric-aware match, then substring containment.
func (t *Table) Lookup(category, option string) (models.FieldConfig, bool) {
	if t == nil {
		return models.FieldConfig{}, false
	}
	key := Normalize(category)
	if cfg, ok := matchExact(t.exact[key], option); ok {
		return cfg, true
	}
	candidates := t.byCategory[key]
	if cfg, ok := matchNumeric(candidates, option); ok {
		return cfg, true
	}
	return matchContains(candidates, option)
}

// Category returns the active configs of category in load order.
func (t *Table) Category(category string) []models.FieldConfig {
	if t == nil {
		return nil
	}
	return t.byCategory[Normalize(category)]
}

// ValueRange reports the smallest and largest value configured in category.
func (t *Table) ValueRange(category string) (lo, hi float64, ok bool) {
	for i, cfg := range t.Category(category) {
		if i == 0 || cfg.Value < lo {
			lo = cfg.Value
		}
		if i == 0 || cfg.Value > hi {
			hi = cfg.Value
		}
		ok = true
	}
	return lo, hi, ok
}

func matchExact(options map[string]models.FieldConfig, option string) (models.FieldConfig, bool) {
	key := Normalize(option)
	if key == "" {
		return models.FieldConfig{}, false
	}
	cfg, ok := options[key]
	return cfg, ok
}

// matchNumeric handles selections such as "3" against options such as
// "3 bedrooms": the digits of the query must equal a digit run of the option.
func matchNumeric(configs []models.FieldConfig, option string) (models.FieldConfig, bool) {
	digits := digitsOnly(option)
	if digits == "" {
		return models.FieldConfig{}, false
	}
	for _, cfg := range configs {
		for _, run := range digitRuns(cfg.Option) {
			if run == digits {
				return cfg, true
			}
		}
	}
	return models.FieldConfig{}, false
}

func matchContains(configs []models.FieldConfig, option string) (models.FieldConfig, bool) {
	query := Normalize(option)
	if query == "" {
		return models.FieldConfig{}, false
	}
	for _, cfg := range configs {
		candidate := Normalize(cfg.Option)
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, query) || strings.Contains(query, candidate) {
			return cfg, true
		}
	}
	return models.FieldConfig{}, false
}
