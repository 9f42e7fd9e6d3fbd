package pricing

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codr1/tidyquote/internal/formula"
	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/snapshot"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

type recordingReporter struct {
	mu       sync.Mutex
	failures map[string]error
}

func (r *recordingReporter) ReportFormulaFailure(_ context.Context, name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = make(map[string]error)
	}
	r.failures[name] = err
}

func intPtr(v int) *int              { return &v }
func floatPtr(v float64) *float64    { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func testConfigs() []models.FieldConfig {
	return []models.FieldConfig{
		{Category: "Service Type", Option: "Checkin-Checkout", Value: 15, Time: 1, IsActive: true},
		{Category: "Service Type", Option: "Deep clean", Value: 20, Time: 1.5, IsActive: true},
		{Category: "Bedrooms", Option: "3 bedrooms", Value: 0, Time: 90, IsActive: true},
		{Category: "Bathrooms", Option: "1 bathroom", Time: 30, IsActive: true},
		{Category: "Bathrooms", Option: "2 bathrooms", Time: 50, IsActive: true},
		{Category: "Equipment Arrangement", Option: "Customer provides", Value: 0, IsActive: true},
		{Category: "Equipment Arrangement", Option: "Cleaner brings", Value: 2, IsActive: true},
		{Category: "Equipment Arrangement", Option: "Full kit delivery", Value: 20, IsActive: true},
		{Category: "Oven Cleaning", Option: "Standard oven", Value: 25, Time: 60, IsActive: true},
		{Category: "Linen Handling", Option: "Change beds", Value: 0, Time: 15, IsActive: true},
		{Category: "Bed Sizes", Option: "Double", Time: 10, IsActive: true},
		{Category: "Bed Sizes", Option: "King", Time: 15, IsActive: true},
		{Category: "Same Day Turnaround", Option: "Yes", Value: 5, IsActive: true},
		{Category: "Same Day Turnaround", Option: "No", Value: 0, IsActive: true},
		{Category: "Cleaning Products", Option: "Eco", Value: 1.5, IsActive: true},
		{Category: "Already Cleaned", Option: "Yes", Value: 0, IsActive: true},
		{Category: "Already Cleaned", Option: "No", Value: 3, Time: 30, IsActive: true},
	}
}

func testSnapshot(t *testing.T, rules []models.SchedulingRule, formulas []models.Formula) *snapshot.Snapshot {
	t.Helper()
	snap, rejected := snapshot.Build("test", time.Now(), testConfigs(), nil, rules, formulas)
	if len(rejected) != 0 {
		t.Fatalf("Build() rejected formulas: %+v", rejected)
	}
	return snap
}

// elementsOf builds a formula element list from space-separated source.
func elementsOf(src string) []models.FormulaElement {
	var out []models.FormulaElement
	for _, part := range strings.Fields(src) {
		switch {
		case strings.ContainsAny(part[:1], "0123456789"):
			out = append(out, models.FormulaElement{Kind: models.ElementNumber, Value: part})
		case strings.ContainsAny(part[:1], "+-*/()<>?:!=&|"):
			out = append(out, models.FormulaElement{Kind: models.ElementOperator, Value: part})
		default:
			out = append(out, models.FormulaElement{Kind: models.ElementField, Reference: part})
		}
	}
	return out
}

func pipelineFormulas() []models.Formula {
	sources := map[string]string{
		models.FormulaBaseTime:       "( propertytype.time + bedrooms.time + bathrooms.time + alreadycleaned.time ) * servicetype.time",
		models.FormulaAdditionalTime: "linenhandling.time + bedsizes.time + ovencleaning.time",
		models.FormulaTotalHours:     "basetime + additionaltime",
		models.FormulaCleaningCost:   "totalhours * hourlyrate",
		models.FormulaTotalCost:      "cleaningcost + shortnoticecharge + onetimecharge",
	}
	var out []models.Formula
	for _, name := range models.PipelineFormulas {
		out = append(out, models.Formula{
			Name:       name,
			ResultType: models.ResultCost,
			Elements:   elementsOf(sources[name]),
			IsActive:   true,
		})
	}
	return out
}

func baseDraft() models.BookingDraft {
	return models.BookingDraft{
		ServiceType: "checkin-checkout",
		Bedrooms:    "3",
		Bathrooms:   "1",
	}
}

func newCalculator(now time.Time, mutate func(*Config)) *Calculator {
	cfg := DefaultConfig()
	cfg.Clock = &mockClock{now: now}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

var quoteTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestRoundMinutes(t *testing.T) {
	tests := map[float64]float64{
		0:   0,
		-30: 0,
		14:  0,
		15:  0.5,
		44:  0.5,
		45:  1,
		60:  1,
		120: 2,
		134: 2,
		135: 2.5,
		165: 3,
		599: 10,
	}
	for minutes, want := range tests {
		if got := RoundMinutes(minutes); got != want {
			t.Errorf("RoundMinutes(%v) = %v, want %v", minutes, got, want)
		}
	}
}

func TestRoundMinutesLaw(t *testing.T) {
	for m := 0; m <= 24*60; m++ {
		got := RoundMinutes(float64(m))
		if got*2 != math.Trunc(got*2) {
			t.Fatalf("RoundMinutes(%d) = %v, not a multiple of 0.5", m, got)
		}
		whole := float64(m / 60)
		var want float64
		switch rem := m % 60; {
		case rem < 15:
			want = whole
		case rem <= 44:
			want = whole + 0.5
		default:
			want = whole + 1
		}
		if got != want {
			t.Fatalf("RoundMinutes(%d) = %v, want %v", m, got, want)
		}
	}
}

func TestShortNoticeCharge(t *testing.T) {
	tiers := DefaultTiers()
	tests := []struct {
		hours float64
		want  float64
	}{
		{-3, 50},
		{0, 50},
		{10, 50},
		{12, 50},
		{12.5, 30},
		{24, 30},
		{36, 15},
		{48, 15},
		{48.01, 0},
		{200, 0},
	}
	for _, tt := range tests {
		if got := ShortNoticeCharge(tt.hours, tiers); got != tt.want {
			t.Errorf("ShortNoticeCharge(%v) = %v, want %v", tt.hours, got, tt.want)
		}
	}

	unsorted := []Tier{{WithinHours: 48, Charge: 15}, {WithinHours: 12, Charge: 50}}
	if got := ShortNoticeCharge(6, unsorted); got != 50 {
		t.Fatalf("ShortNoticeCharge(unsorted) = %v, want 50", got)
	}
}

func TestAppointmentTime(t *testing.T) {
	got, ok := AppointmentTime(models.Schedule{Date: "2024-06-10", TimeSlot: "9am - 10am"}, time.UTC)
	if !ok || !got.Equal(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("AppointmentTime() = %v, %v", got, ok)
	}
	got, ok = AppointmentTime(models.Schedule{Date: "2024-06-10", TimeSlot: "whenever"}, time.UTC)
	if !ok || got.Hour() != 0 {
		t.Fatalf("AppointmentTime(unparsable slot) = %v, %v, want midnight", got, ok)
	}
	if _, ok := AppointmentTime(models.Schedule{Date: "10/06/2024"}, time.UTC); ok {
		t.Fatalf("AppointmentTime(bad date) ok = true, want false")
	}
}

func TestClassifyEquipment(t *testing.T) {
	tests := []struct {
		value, lo, hi float64
		want          EquipmentClass
	}{
		{0, 0, 20, EquipmentNone},
		{2, 0, 20, EquipmentOngoing},
		{10, 0, 20, EquipmentOngoing},
		{10.5, 0, 20, EquipmentOneTime},
		{20, 0, 20, EquipmentOneTime},
		{5, 5, 5, EquipmentOngoing},
	}
	for _, tt := range tests {
		if got := ClassifyEquipment(tt.value, tt.lo, tt.hi); got != tt.want {
			t.Errorf("ClassifyEquipment(%v, %v, %v) = %v, want %v", tt.value, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestComputeBaseScenario(t *testing.T) {
	calc := newCalculator(quoteTime, nil)
	got := calc.Compute(context.Background(), baseDraft(), testSnapshot(t, nil, nil))

	if got.BaseTime != 2 || got.ComputedBaseTime != 2 || got.IsUserOverride {
		t.Fatalf("base time = %v (computed %v, override %v), want 2", got.BaseTime, got.ComputedBaseTime, got.IsUserOverride)
	}
	if got.HourlyRate != 15 {
		t.Fatalf("HourlyRate = %v, want 15", got.HourlyRate)
	}
	if got.CleaningCost != 30 || got.TotalCost != 30 {
		t.Fatalf("CleaningCost = %v, TotalCost = %v, want 30, 30", got.CleaningCost, got.TotalCost)
	}
	if got.Strategy != StrategyStandard || got.SnapshotVersion != "test" {
		t.Fatalf("Strategy = %q, SnapshotVersion = %q", got.Strategy, got.SnapshotVersion)
	}
	if got.Modifiers == nil {
		t.Fatalf("Modifiers = nil, want empty slice")
	}
}

func TestComputeDayPricingScenario(t *testing.T) {
	rules := []models.SchedulingRule{
		{ID: 1, RuleType: models.RuleDayPricing, DayOfWeek: intPtr(5), ModifierType: models.ModifierPercentage, PriceModifier: 20, Label: "Friday", IsActive: true},
	}
	draft := baseDraft()
	draft.Schedule = models.Schedule{Date: "2024-06-07", TimeSlot: "9am - 10am"}

	got := newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, rules, nil))
	if got.AdditionalCharge != 6 || got.TotalCost != 36 {
		t.Fatalf("AdditionalCharge = %v, TotalCost = %v, want 6, 36", got.AdditionalCharge, got.TotalCost)
	}
	if len(got.Modifiers) != 1 || got.Modifiers[0].Label != "Friday" {
		t.Fatalf("Modifiers = %+v, want Friday", got.Modifiers)
	}
}

func TestComputeShortNoticeScenario(t *testing.T) {
	now := time.Date(2024, 6, 9, 23, 0, 0, 0, time.UTC)
	draft := baseDraft()
	draft.Schedule = models.Schedule{Date: "2024-06-10", TimeSlot: "9am - 10am"}

	calc := newCalculator(now, nil)
	got := calc.Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	if got.ShortNoticeCharge != 50 || got.TotalCost != 80 {
		t.Fatalf("ShortNoticeCharge = %v, TotalCost = %v, want 50, 80", got.ShortNoticeCharge, got.TotalCost)
	}

	empty := models.BookingDraft{Schedule: draft.Schedule}
	got = calc.Compute(context.Background(), empty, testSnapshot(t, nil, nil))
	if got.CleaningCost != 0 || got.TotalCost != 50 {
		t.Fatalf("zero-cost quote total = %v, want 50", got.TotalCost)
	}

	// QuotedAt pins the reference time.
	draft.QuotedAt = timePtr(now.Add(-72 * time.Hour))
	got = calc.Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	if got.ShortNoticeCharge != 0 {
		t.Fatalf("ShortNoticeCharge with QuotedAt = %v, want 0", got.ShortNoticeCharge)
	}
}

func TestComputeUserOverride(t *testing.T) {
	draft := baseDraft()
	draft.EstimatedHours = floatPtr(3.5)

	got := newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	if !got.IsUserOverride || got.BaseTime != 3.5 || got.ComputedBaseTime != 2 {
		t.Fatalf("override = %v, base = %v, computed = %v", got.IsUserOverride, got.BaseTime, got.ComputedBaseTime)
	}
	if got.TotalHours != 3.5 || got.CleaningCost != 52.5 {
		t.Fatalf("TotalHours = %v, CleaningCost = %v, want 3.5, 52.5", got.TotalHours, got.CleaningCost)
	}

	draft.EstimatedHours = floatPtr(2.005)
	got = newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	if got.IsUserOverride || got.BaseTime != 2 {
		t.Fatalf("estimate within epsilon: override = %v, base = %v", got.IsUserOverride, got.BaseTime)
	}

	draft.EstimatedHours = floatPtr(0)
	got = newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	if got.IsUserOverride || got.BaseTime != 2 || got.ComputedBaseTime != 2 {
		t.Fatalf("zero estimate: override = %v, base = %v, computed = %v", got.IsUserOverride, got.BaseTime, got.ComputedBaseTime)
	}
	if got.TotalCost == 0 {
		t.Fatalf("zero estimate priced the quote at 0")
	}
}

func TestComputeHourlyContributions(t *testing.T) {
	draft := baseDraft()
	draft.SameDayTurnaround = true
	draft.CleaningProducts = "Eco"
	draft.AlreadyCleaned = "No"
	draft.EquipmentArrangement = "Cleaner brings"

	got := newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	// 15 service + 5 same day + 1.5 products + 3 not pre-cleaned + 2 ongoing equipment.
	if got.HourlyRate != 26.5 {
		t.Fatalf("HourlyRate = %v, want 26.5", got.HourlyRate)
	}
	// 90 + 30 + 30 minutes = 150 -> 2.5h.
	if got.BaseTime != 2.5 {
		t.Fatalf("BaseTime = %v, want 2.5", got.BaseTime)
	}

	disabled := newCalculator(quoteTime, func(c *Config) {
		c.Disabled = map[Contribution]bool{ContributionSameDay: true, ContributionEquipment: true}
	})
	got = disabled.Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	if got.HourlyRate != 19.5 {
		t.Fatalf("HourlyRate with disabled contributions = %v, want 19.5", got.HourlyRate)
	}
}

func TestComputeOneTimeCharges(t *testing.T) {
	draft := baseDraft()
	draft.EquipmentArrangement = "Full kit delivery"
	draft.OvenCleaning = "Standard oven"

	got := newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	if got.HourlyRate != 15 {
		t.Fatalf("HourlyRate = %v, want 15 (equipment is one-time)", got.HourlyRate)
	}
	if got.OneTimeCharge != 45 {
		t.Fatalf("OneTimeCharge = %v, want 45", got.OneTimeCharge)
	}
	// 2h base + 1h oven add-on at 15/h, plus 45 one-time.
	if got.AdditionalTime != 1 || got.TotalCost != 90 {
		t.Fatalf("AdditionalTime = %v, TotalCost = %v, want 1, 90", got.AdditionalTime, got.TotalCost)
	}
}

func TestComputeAddOnsAndQuantities(t *testing.T) {
	draft := baseDraft()
	draft.LinenHandling = "Change beds"
	draft.BedSizes = map[string]int{"Double": 2, "King": 1}

	got := newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	// 15 + 2*10 + 15 = 50 minutes of add-ons.
	if math.Abs(got.AdditionalTime-0.83) > 1e-9 {
		t.Fatalf("AdditionalTime = %v, want 0.83", got.AdditionalTime)
	}
	if got.TotalCost != 42.5 {
		t.Fatalf("TotalCost = %v, want 42.5", got.TotalCost)
	}
}

func TestComputeServiceMultiplier(t *testing.T) {
	draft := baseDraft()
	draft.ServiceType = "Deep clean"
	got := newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, nil, nil))
	// 120 * 1.5 = 180 minutes.
	if got.BaseTime != 3 || got.HourlyRate != 20 {
		t.Fatalf("BaseTime = %v, HourlyRate = %v, want 3, 20", got.BaseTime, got.HourlyRate)
	}
}

func TestComputeTotalNeverNegative(t *testing.T) {
	rules := []models.SchedulingRule{
		{ID: 1, RuleType: models.RuleDayPricing, DayOfWeek: intPtr(5), ModifierType: models.ModifierFixed, PriceModifier: -100, Label: "Promo", IsActive: true},
		{ID: 2, RuleType: models.RuleTimeSurcharge, StartTime: "08:00", EndTime: "12:00", ModifierType: models.ModifierPercentage, PriceModifier: -50, Label: "Morning", IsActive: true},
	}
	draft := baseDraft()
	draft.Schedule = models.Schedule{Date: "2024-06-07", TimeSlot: "9:00 AM"}

	got := newCalculator(quoteTime, nil).Compute(context.Background(), draft, testSnapshot(t, rules, nil))
	if got.Discount != 115 || got.TotalCost != 0 {
		t.Fatalf("Discount = %v, TotalCost = %v, want 115, 0", got.Discount, got.TotalCost)
	}
}

func TestComputeFormulaStrategy(t *testing.T) {
	snap := testSnapshot(t, nil, pipelineFormulas())
	reporter := &recordingReporter{}
	calc := newCalculator(quoteTime, func(c *Config) {
		c.Strategy = StrategyFormula
		c.Reporter = reporter
	})

	draft := baseDraft()
	draft.OvenCleaning = "Standard oven"
	got := calc.Compute(context.Background(), draft, snap)
	want := newCalculator(quoteTime, nil).Compute(context.Background(), draft, snap)

	if got.Strategy != StrategyFormula {
		t.Fatalf("Strategy = %q, want formula", got.Strategy)
	}
	if got.BaseTime != want.BaseTime || got.TotalHours != want.TotalHours || got.TotalCost != want.TotalCost {
		t.Fatalf("formula quote %+v disagrees with standard %+v", got, want)
	}
	if len(reporter.failures) != 0 {
		t.Fatalf("reported failures %v, want none", reporter.failures)
	}
}

func TestComputeFormulaFallback(t *testing.T) {
	formulas := pipelineFormulas()
	for i := range formulas {
		if formulas[i].Name == models.FormulaCleaningCost {
			formulas[i].Elements = elementsOf("totalhours / 0")
		}
	}
	reporter := &recordingReporter{}
	calc := newCalculator(quoteTime, func(c *Config) {
		c.Strategy = StrategyFormula
		c.Reporter = reporter
	})

	got := calc.Compute(context.Background(), baseDraft(), testSnapshot(t, nil, formulas))
	if got.CleaningCost != 30 || got.TotalCost != 30 {
		t.Fatalf("CleaningCost = %v, TotalCost = %v, want fallback 30, 30", got.CleaningCost, got.TotalCost)
	}
	err, ok := reporter.failures[models.FormulaCleaningCost]
	if !ok || len(reporter.failures) != 1 {
		t.Fatalf("reported failures %v, want only Cleaning Cost", reporter.failures)
	}
	if _, isEval := err.(*formula.EvaluationError); !isEval {
		t.Fatalf("reported error %T, want *formula.EvaluationError", err)
	}
}

func TestComputeFormulaStrategyNeedsPipeline(t *testing.T) {
	formulas := pipelineFormulas()[:3]
	calc := newCalculator(quoteTime, func(c *Config) { c.Strategy = StrategyFormula })
	got := calc.Compute(context.Background(), baseDraft(), testSnapshot(t, nil, formulas))
	if got.Strategy != StrategyStandard {
		t.Fatalf("Strategy = %q, want standard fallback", got.Strategy)
	}
}

func TestComputeNilSnapshot(t *testing.T) {
	got := newCalculator(quoteTime, nil).Compute(context.Background(), baseDraft(), nil)
	if got.TotalCost != 0 || got.SnapshotVersion != "empty" {
		t.Fatalf("Compute(nil snapshot) = %+v", got)
	}
}
