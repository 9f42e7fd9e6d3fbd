package models

import (
	"fmt"
	"strings"
	"time"
)

type ElementKind string

const (
	ElementField    ElementKind = "field"
	ElementOperator ElementKind = "operator"
	ElementNumber   ElementKind = "number"
)

type ResultType string

const (
	ResultCost       ResultType = "cost"
	ResultTime       ResultType = "time"
	ResultPercentage ResultType = "percentage"
)

// Names of the formulas the formula-driven pipeline evaluates, in order.
const (
	FormulaBaseTime       = "Base time"
	FormulaAdditionalTime = "Additional Time"
	FormulaTotalHours     = "Total Hours"
	FormulaCleaningCost   = "Cleaning Cost"
	FormulaTotalCost      = "Total cost"
)

// PipelineFormulas lists the pipeline formula names in evaluation order.
var PipelineFormulas = []string{
	FormulaBaseTime,
	FormulaAdditionalTime,
	FormulaTotalHours,
	FormulaCleaningCost,
	FormulaTotalCost,
}

// Names of the computed quantities the pipeline adds to a formula context.
const (
	ScalarBaseTime          = "basetime"
	ScalarAdditionalTime    = "additionaltime"
	ScalarTotalHours        = "totalhours"
	ScalarHourlyRate        = "hourlyrate"
	ScalarCleaningCost      = "cleaningcost"
	ScalarShortNoticeCharge = "shortnoticecharge"
	ScalarOneTimeCharge     = "onetimecharge"
)

// PipelineScalars lists every computed quantity a formula may reference.
var PipelineScalars = []string{
	ScalarBaseTime,
	ScalarAdditionalTime,
	ScalarTotalHours,
	ScalarHourlyRate,
	ScalarCleaningCost,
	ScalarShortNoticeCharge,
	ScalarOneTimeCharge,
}

// FormulaElement is one entry of a formula's stored element list.
// Field elements use Reference (optionally suffixed .value/.time/.min/.max)
// and Attribute; operator and number elements use Value.
type FormulaElement struct {
	Kind      ElementKind `json:"kind" yaml:"kind"`
	Reference string      `json:"reference,omitempty" yaml:"reference,omitempty"`
	Attribute string      `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Value     string      `json:"value,omitempty" yaml:"value,omitempty"`
}

type Formula struct {
	ID         int64            `json:"id" yaml:"-"`
	Name       string           `json:"name" yaml:"name"`
	ResultType ResultType       `json:"resultType" yaml:"result_type"`
	Elements   []FormulaElement `json:"elements" yaml:"elements"`
	IsActive   bool             `json:"isActive" yaml:"active"`
	CreatedAt  time.Time        `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time        `json:"updatedAt" yaml:"-"`
}

func (k ElementKind) Valid() bool {
	switch k {
	case ElementField, ElementOperator, ElementNumber:
		return true
	}
	return false
}

func (r ResultType) Valid() bool {
	switch r {
	case ResultCost, ResultTime, ResultPercentage:
		return true
	}
	return false
}

// Validate checks the record shape. Expression validity is checked by the
// formula package.
func (f Formula) Validate() error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if name != f.Name {
		return fmt.Errorf("name must not have leading or trailing whitespace")
	}
	if len(name) > maxCategoryLength {
		return fmt.Errorf("name must be %d characters or fewer", maxCategoryLength)
	}
	if !f.ResultType.Valid() {
		return fmt.Errorf("result_type must be one of cost, time, percentage")
	}
	if len(f.Elements) == 0 {
		return fmt.Errorf("elements are required")
	}
	for i, el := range f.Elements {
		if !el.Kind.Valid() {
			return fmt.Errorf("element %d has unknown kind %q", i, el.Kind)
		}
		switch el.Kind {
		case ElementField:
			if strings.TrimSpace(el.Reference) == "" {
				return fmt.Errorf("element %d: field reference is required", i)
			}
		default:
			if strings.TrimSpace(el.Value) == "" {
				return fmt.Errorf("element %d: value is required", i)
			}
		}
	}
	return nil
}
