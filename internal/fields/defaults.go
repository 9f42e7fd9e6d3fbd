package fields

import (
	"strings"

	"github.com/codr1/tidyquote/internal/models"
)

// Defaults answers the fallback option for a category.
type Defaults struct {
	options map[string]string
}

func NewDefaults(rows []models.CategoryDefault) *Defaults {
	d := &Defaults{options: make(map[string]string, len(rows))}
	for _, row := range rows {
		if row.DefaultOption == nil {
			continue
		}
		option := strings.TrimSpace(*row.DefaultOption)
		if option == "" {
			continue
		}
		d.options[Normalize(row.Category)] = option
	}
	return d
}

// Option returns the default option configured for category, if any.
func (d *Defaults) Option(category string) (string, bool) {
	if d == nil {
		return "", false
	}
	option, ok := d.options[Normalize(category)]
	return option, ok
}
