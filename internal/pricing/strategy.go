package pricing

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/fields"
	"github.com/codr1/tidyquote/internal/formula"
	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/snapshot"
)

const (
	StrategyStandard = "standard"
	StrategyFormula  = "formula"
)

var ErrFormulaMissing = errors.New("formula is not in the snapshot")

// Worksheet carries one quote through the pipeline. The calculator fills the
// hourly rate and the upstream charges; a Strategy fills durations, cleaning
// cost and the subtotal before scheduling modifiers.
type Worksheet struct {
	Draft    models.BookingDraft
	Snapshot *snapshot.Snapshot

	ComputedBaseTime float64
	BaseTime         float64
	IsUserOverride   bool
	AdditionalTime   float64
	TotalHours       float64

	HourlyRate        float64
	CleaningCost      float64
	ShortNoticeCharge float64
	OneTimeCharge     float64
	Subtotal          float64

	epsilon float64
}

// SetBaseTime records the computed base time and applies the draft's
// estimated hours when they differ from it by more than the epsilon. An
// estimate of zero hours or less is no estimate.
func (w *Worksheet) SetBaseTime(computed float64) {
	w.ComputedBaseTime = computed
	w.BaseTime = computed
	w.IsUserOverride = false
	if est := w.Draft.EstimatedHours; est != nil && *est > 0 && math.Abs(*est-computed) > w.epsilon {
		w.BaseTime = *est
		w.IsUserOverride = true
	}
}

// Strategy computes durations and costs for a worksheet.
type Strategy interface {
	Name() string
	Price(ctx context.Context, w *Worksheet)
}

var baseTimeFields = []string{
	fields.PropertyType,
	fields.Bedrooms,
	fields.Bathrooms,
	fields.Toilets,
	fields.LivingRooms,
	fields.Kitchens,
	fields.AdditionalRooms,
	fields.AlreadyCleaned,
}

var addOnFields = []string{
	fields.LinenHandling,
	fields.BedSizes,
	fields.Ironing,
	fields.OvenCleaning,
}

// StandardStrategy is the hand-coded calculation.
type StandardStrategy struct{}

func (StandardStrategy) Name() string { return StrategyStandard }

func (StandardStrategy) Price(ctx context.Context, w *Worksheet) {
	res := w.Snapshot.Resolver

	var minutes float64
	for _, field := range baseTimeFields {
		minutes += res.Time(ctx, field, w.Draft)
	}
	multiplier := res.Time(ctx, fields.ServiceType, w.Draft)
	if multiplier <= 0 {
		multiplier = 1
	}
	w.SetBaseTime(RoundMinutes(minutes * multiplier))

	var addOn float64
	for _, field := range addOnFields {
		addOn += res.Time(ctx, field, w.Draft)
	}
	w.AdditionalTime = addOn / 60

	w.TotalHours = w.BaseTime + w.AdditionalTime
	w.CleaningCost = w.TotalHours * w.HourlyRate
	w.Subtotal = w.CleaningCost + w.ShortNoticeCharge + w.OneTimeCharge
}

// FormulaStrategy evaluates the named pipeline formulas in order. A formula
// that fails falls back to what the standard calculation derives from the
// results before it, and the failure is reported.
type FormulaStrategy struct {
	Reporter Reporter
}

func (FormulaStrategy) Name() string { return StrategyFormula }

func (s FormulaStrategy) Price(ctx context.Context, w *Worksheet) {
	fc := formulaContext(ctx, w)

	w.SetBaseTime(RoundMinutes(s.eval(ctx, w, fc, models.FormulaBaseTime, 0)))
	fc.SetScalar(models.ScalarBaseTime, w.BaseTime)

	w.AdditionalTime = s.eval(ctx, w, fc, models.FormulaAdditionalTime, 0) / 60
	fc.SetScalar(models.ScalarAdditionalTime, w.AdditionalTime)

	w.TotalHours = s.eval(ctx, w, fc, models.FormulaTotalHours, w.BaseTime+w.AdditionalTime)
	fc.SetScalar(models.ScalarTotalHours, w.TotalHours)

	w.CleaningCost = s.eval(ctx, w, fc, models.FormulaCleaningCost, w.TotalHours*w.HourlyRate)
	fc.SetScalar(models.ScalarCleaningCost, w.CleaningCost)

	w.Subtotal = s.eval(ctx, w, fc, models.FormulaTotalCost,
		w.CleaningCost+w.ShortNoticeCharge+w.OneTimeCharge)
}

func (s FormulaStrategy) eval(ctx context.Context, w *Worksheet, fc formula.Context, name string, fallback float64) float64 {
	var err error
	if expr, ok := w.Snapshot.Formula(name); ok {
		var v float64
		if v, err = expr.Eval(fc); err == nil {
			return v
		}
	} else {
		err = ErrFormulaMissing
	}

	evalErr := &formula.EvaluationError{Formula: name, Err: err}
	log.Ctx(ctx).Warn().
		Err(evalErr).
		Str("component", "pricing").
		Str("formula", name).
		Float64("fallback", fallback).
		Msg("Formula evaluation failed, using fallback")
	if s.Reporter != nil {
		s.Reporter.ReportFormulaFailure(ctx, name, evalErr)
	}
	return fallback
}

// formulaContext resolves every known field for the draft and seeds the
// computed quantities. Quantities not computed yet read as 0.
func formulaContext(ctx context.Context, w *Worksheet) formula.Context {
	fc := make(formula.Context)
	for _, name := range w.Snapshot.FieldNames() {
		r := w.Snapshot.Resolver.Resolve(ctx, name, w.Draft)
		fc.Set(name, formula.Attributes{Value: r.Value, Time: r.Time, Min: r.Min, Max: r.Max})
	}
	for _, name := range models.PipelineScalars {
		fc.SetScalar(name, 0)
	}
	fc.SetScalar(models.ScalarHourlyRate, w.HourlyRate)
	fc.SetScalar(models.ScalarShortNoticeCharge, w.ShortNoticeCharge)
	fc.SetScalar(models.ScalarOneTimeCharge, w.OneTimeCharge)
	return fc
}
