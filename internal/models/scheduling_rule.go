package models

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

type RuleType string

const (
	RuleDayPricing     RuleType = "dayPricing"
	RuleTimeSurcharge  RuleType = "timeSurcharge"
	RuleCutoff         RuleType = "cutoff"
	RuleOvertimeWindow RuleType = "overtimeWindow"
	RuleTimeSlot       RuleType = "timeSlot"
)

type ModifierType string

const (
	ModifierFixed      ModifierType = "fixed"
	ModifierPercentage ModifierType = "percentage"
)

var clockTimeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// SchedulingRule prices or constrains bookings by weekday and time of day.
type SchedulingRule struct {
	ID            int64        `json:"id" yaml:"-"`
	RuleType      RuleType     `json:"ruleType" yaml:"rule_type"`
	DayOfWeek     *int         `json:"dayOfWeek,omitempty" yaml:"day_of_week,omitempty"`
	StartTime     string       `json:"startTime,omitempty" yaml:"start_time,omitempty"`
	EndTime       string       `json:"endTime,omitempty" yaml:"end_time,omitempty"`
	ModifierType  ModifierType `json:"modifierType" yaml:"modifier_type"`
	PriceModifier float64      `json:"priceModifier" yaml:"price_modifier"`
	Label         string       `json:"label" yaml:"label"`
	IsActive      bool         `json:"isActive" yaml:"active"`
}

func (t RuleType) Valid() bool {
	switch t {
	case RuleDayPricing, RuleTimeSurcharge, RuleCutoff, RuleOvertimeWindow, RuleTimeSlot:
		return true
	}
	return false
}

func (r SchedulingRule) Validate() error {
	if !r.RuleType.Valid() {
		return fmt.Errorf("rule_type %q is not supported", r.RuleType)
	}
	switch r.ModifierType {
	case ModifierFixed, ModifierPercentage:
	default:
		return fmt.Errorf("modifier_type must be fixed or percentage")
	}
	if math.IsNaN(r.PriceModifier) || math.IsInf(r.PriceModifier, 0) {
		return fmt.Errorf("price_modifier must be a finite number")
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < 0 || *r.DayOfWeek > 6) {
		return fmt.Errorf("day_of_week must be between 0 (Sunday) and 6 (Saturday)")
	}
	if r.RuleType == RuleDayPricing && r.DayOfWeek == nil {
		return fmt.Errorf("day_of_week is required for dayPricing rules")
	}
	if r.RuleType == RuleTimeSurcharge || r.RuleType == RuleOvertimeWindow {
		if r.StartTime == "" || r.EndTime == "" {
			return fmt.Errorf("start_time and end_time are required for %s rules", r.RuleType)
		}
	}
	for name, value := range map[string]string{"start_time": r.StartTime, "end_time": r.EndTime} {
		if value != "" && !clockTimeRegex.MatchString(value) {
			return fmt.Errorf("%s must be formatted HH:MM", name)
		}
	}
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("label is required")
	}
	return nil
}
