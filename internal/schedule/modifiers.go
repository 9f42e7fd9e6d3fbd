package schedule

import (
	"time"

	"github.com/codr1/tidyquote/internal/models"
)

// Result is the combined effect of the scheduling rules on one quote.
// Discount is a positive magnitude.
type Result struct {
	AdditionalCharge float64
	Discount         float64
	Details          []models.ModifierDetail
}

// ApplyModifiers applies the day-pricing rule for date's weekday and every
// time-surcharge rule containing the slot start to cleaningCost. A zero date
// skips day pricing; an unparsable slot skips time surcharges. All modifiers
// stack additively, so the result does not depend on rule order.
func ApplyModifiers(cleaningCost float64, date time.Time, timeSlot string, rules []models.SchedulingRule) Result {
	var res Result

	if !date.IsZero() {
		if rule, ok := DayRule(rules, date.Weekday()); ok {
			res.apply(rule, cleaningCost)
		}
	}

	if minute, err := ParseSlotStart(timeSlot); err == nil {
		for _, rule := range TimeRules(rules, minute) {
			res.apply(rule, cleaningCost)
		}
	}

	return res
}

// DayRule returns the first active dayPricing rule for weekday.
func DayRule(rules []models.SchedulingRule, weekday time.Weekday) (models.SchedulingRule, bool) {
	for _, rule := range rules {
		if !rule.IsActive || rule.RuleType != models.RuleDayPricing || rule.DayOfWeek == nil {
			continue
		}
		if *rule.DayOfWeek == int(weekday) {
			return rule, true
		}
	}
	return models.SchedulingRule{}, false
}

// TimeRules returns the active timeSurcharge rules whose window contains minute.
func TimeRules(rules []models.SchedulingRule, minute int) []models.SchedulingRule {
	var matched []models.SchedulingRule
	for _, rule := range rules {
		if !rule.IsActive || rule.RuleType != models.RuleTimeSurcharge {
			continue
		}
		start, err := ParseClock(rule.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseClock(rule.EndTime)
		if err != nil {
			continue
		}
		if windowContains(start, end, minute) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Amount is the signed currency effect of rule on cleaningCost.
func Amount(rule models.SchedulingRule, cleaningCost float64) float64 {
	if rule.ModifierType == models.ModifierPercentage {
		return cleaningCost * rule.PriceModifier / 100
	}
	return rule.PriceModifier
}

func (r *Result) apply(rule models.SchedulingRule, cleaningCost float64) {
	amount := Amount(rule, cleaningCost)
	switch {
	case amount > 0:
		r.AdditionalCharge += amount
	case amount < 0:
		r.Discount += -amount
	default:
		return
	}
	r.Details = append(r.Details, models.ModifierDetail{
		RuleID:   rule.ID,
		RuleType: rule.RuleType,
		Label:    rule.Label,
		Amount:   amount,
	})
}

// Slots returns the labels of the active timeSlot rules in rule order.
func Slots(rules []models.SchedulingRule) []string {
	var labels []string
	for _, rule := range rules {
		if rule.IsActive && rule.RuleType == models.RuleTimeSlot {
			labels = append(labels, rule.Label)
		}
	}
	return labels
}
