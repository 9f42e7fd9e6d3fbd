package pricing

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/schedule"
	"github.com/codr1/tidyquote/internal/snapshot"
)

// DefaultOverrideEpsilon is how far estimated hours may differ from the
// computed base time before they count as an override.
const DefaultOverrideEpsilon = 0.01

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Reporter receives formula evaluation failures for admin follow-up.
type Reporter interface {
	ReportFormulaFailure(ctx context.Context, formulaName string, err error)
}

// Config holds calculator configuration.
type Config struct {
	Strategy         string         // standard or formula (default: standard)
	Location         *time.Location // Zone draft dates are read in (default: UTC)
	OverrideEpsilon  float64        // default: DefaultOverrideEpsilon
	ShortNoticeTiers []Tier         // default: DefaultTiers()
	Disabled         map[Contribution]bool

	// Clock for testing (nil uses real time)
	Clock Clock
	// Reporter for formula failures (nil discards them)
	Reporter Reporter
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Strategy:         StrategyStandard,
		Location:         time.UTC,
		OverrideEpsilon:  DefaultOverrideEpsilon,
		ShortNoticeTiers: DefaultTiers(),
	}
}

// Calculator computes quotes. It holds no per-quote state and is safe for
// concurrent use.
type Calculator struct {
	config   *Config
	clock    Clock
	standard Strategy
	formula  Strategy
}

func New(cfg *Config) *Calculator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.OverrideEpsilon <= 0 {
		cfg.OverrideEpsilon = DefaultOverrideEpsilon
	}
	if cfg.ShortNoticeTiers == nil {
		cfg.ShortNoticeTiers = DefaultTiers()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Calculator{
		config:   cfg,
		clock:    clock,
		standard: StandardStrategy{},
		formula:  FormulaStrategy{Reporter: cfg.Reporter},
	}
}

// Compute prices draft against snap. It reads no external state besides the
// clock and never fails: configuration misses price as 0 and broken formulas
// fall back.
func (c *Calculator) Compute(ctx context.Context, draft models.BookingDraft, snap *snapshot.Snapshot) models.QuoteResult {
	if snap == nil {
		snap = snapshot.Empty()
	}
	w := &Worksheet{
		Draft:    draft,
		Snapshot: snap,
		epsilon:  c.config.OverrideEpsilon,
	}

	r := c.rates(ctx, w)
	w.HourlyRate = r.hourly
	w.OneTimeCharge = r.oneTime
	w.ShortNoticeCharge = c.shortNotice(draft)

	strategy := c.strategyFor(ctx, snap)
	strategy.Price(ctx, w)

	mods := schedule.ApplyModifiers(w.CleaningCost, c.appointmentDate(draft), draft.Schedule.TimeSlot, snap.Rules)
	total := math.Max(0, w.Subtotal+mods.AdditionalCharge-mods.Discount)

	return project(w, mods, total, strategy.Name())
}

// ShortNotice returns the short-notice charge for draft at the current time.
func (c *Calculator) ShortNotice(draft models.BookingDraft) float64 {
	return c.shortNotice(draft)
}

func (c *Calculator) shortNotice(draft models.BookingDraft) float64 {
	now := c.clock.Now()
	if draft.QuotedAt != nil {
		now = *draft.QuotedAt
	}
	hours, ok := HoursUntil(now, draft.Schedule, c.config.Location)
	if !ok {
		return 0
	}
	return ShortNoticeCharge(hours, c.config.ShortNoticeTiers)
}

func (c *Calculator) appointmentDate(draft models.BookingDraft) time.Time {
	date := strings.TrimSpace(draft.Schedule.Date)
	if date == "" {
		return time.Time{}
	}
	day, err := time.ParseInLocation(models.DraftDateLayout, date, c.config.Location)
	if err != nil {
		return time.Time{}
	}
	return day
}

func (c *Calculator) strategyFor(ctx context.Context, snap *snapshot.Snapshot) Strategy {
	if c.config.Strategy != StrategyFormula {
		return c.standard
	}
	if !snap.HasPipeline() {
		log.Ctx(ctx).Debug().
			Str("component", "pricing").
			Str("snapshot", snap.Version).
			Msg("Pipeline formulas incomplete, using standard strategy")
		return c.standard
	}
	return c.formula
}

func (c *Calculator) enabled(contribution Contribution) bool {
	return !c.config.Disabled[contribution]
}

// project rounds the worksheet to currency precision.
func project(w *Worksheet, mods schedule.Result, total float64, strategy string) models.QuoteResult {
	details := make([]models.ModifierDetail, 0, len(mods.Details))
	for _, d := range mods.Details {
		d.Amount = round2(d.Amount)
		details = append(details, d)
	}
	return models.QuoteResult{
		BaseTime:          round2(w.BaseTime),
		ComputedBaseTime:  round2(w.ComputedBaseTime),
		IsUserOverride:    w.IsUserOverride,
		AdditionalTime:    round2(w.AdditionalTime),
		TotalHours:        round2(w.TotalHours),
		HourlyRate:        round2(w.HourlyRate),
		CleaningCost:      round2(w.CleaningCost),
		ShortNoticeCharge: round2(w.ShortNoticeCharge),
		OneTimeCharge:     round2(w.OneTimeCharge),
		AdditionalCharge:  round2(mods.AdditionalCharge),
		Discount:          round2(mods.Discount),
		TotalCost:         round2(total),
		Modifiers:         details,
		Strategy:          strategy,
		SnapshotVersion:   w.Snapshot.Version,
	}
}
