// internal/models/field_config.go
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const maxCategoryLength = 100
const maxOptionLength = 200

// FieldConfig maps a (category, option) pair to its price and time attributes.
type FieldConfig struct {
	ID        int64     `json:"id" yaml:"-"`
	Category  string    `json:"category" yaml:"category"`
	Option    string    `json:"option" yaml:"option"`
	Value     float64   `json:"value" yaml:"value"`
	Time      float64   `json:"time" yaml:"time"`
	MinValue  *float64  `json:"minValue,omitempty" yaml:"min_value,omitempty"`
	MaxValue  *float64  `json:"maxValue,omitempty" yaml:"max_value,omitempty"`
	IsActive  bool      `json:"isActive" yaml:"active"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// CategoryDefault names the option used when a draft leaves a category empty.
type CategoryDefault struct {
	Category      string  `json:"category" yaml:"category"`
	DefaultOption *string `json:"defaultOption" yaml:"default_option"`
}

func (c FieldConfig) Validate() error {
	category := strings.TrimSpace(c.Category)
	if category == "" {
		return fmt.Errorf("category is required")
	}
	if len(category) > maxCategoryLength {
		return fmt.Errorf("category must be %d characters or fewer", maxCategoryLength)
	}
	option := strings.TrimSpace(c.Option)
	if option == "" {
		return fmt.Errorf("option is required")
	}
	if len(option) > maxOptionLength {
		return fmt.Errorf("option must be %d characters or fewer", maxOptionLength)
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return fmt.Errorf("value must be a finite number")
	}
	if math.IsNaN(c.Time) || math.IsInf(c.Time, 0) || c.Time < 0 {
		return fmt.Errorf("time must be 0 or greater")
	}
	if c.MinValue != nil && c.MaxValue != nil && *c.MinValue > *c.MaxValue {
		return fmt.Errorf("min_value must not exceed max_value")
	}
	return nil
}

// Min returns MinValue or 0 when unset.
func (c FieldConfig) Min() float64 {
	if c.MinValue == nil {
		return 0
	}
	return *c.MinValue
}

// Max returns MaxValue or 0 when unset.
func (c FieldConfig) Max() float64 {
	if c.MaxValue == nil {
		return 0
	}
	return *c.MaxValue
}
