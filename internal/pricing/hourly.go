package pricing

import (
	"context"
	"fmt"

	"github.com/codr1/tidyquote/internal/fields"
)

// Contribution names one switchable component of the hourly rate.
type Contribution string

const (
	ContributionServiceType   Contribution = "serviceType"
	ContributionSameDay       Contribution = "sameDayTurnaround"
	ContributionProducts      Contribution = "cleaningProducts"
	ContributionNotPreCleaned Contribution = "notPreCleaned"
	ContributionEquipment     Contribution = "equipment"
)

// Contributions lists every hourly-rate contribution.
var Contributions = []Contribution{
	ContributionServiceType,
	ContributionSameDay,
	ContributionProducts,
	ContributionNotPreCleaned,
	ContributionEquipment,
}

// ParseContribution validates a configured contribution name.
func ParseContribution(name string) (Contribution, error) {
	for _, c := range Contributions {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown hourly rate contribution %q", name)
}

// EquipmentClass says how an equipment arrangement is billed.
type EquipmentClass int

const (
	EquipmentNone EquipmentClass = iota
	EquipmentOngoing
	EquipmentOneTime
)

func (c EquipmentClass) String() string {
	switch c {
	case EquipmentOngoing:
		return "ongoing"
	case EquipmentOneTime:
		return "one-time"
	}
	return "none"
}

// ClassifyEquipment places value within the [lo, hi] range of its category.
// Values up to the midpoint are billed per hour, larger ones once.
func ClassifyEquipment(value, lo, hi float64) EquipmentClass {
	if value == 0 {
		return EquipmentNone
	}
	if hi <= lo {
		return EquipmentOngoing
	}
	if value <= (lo+hi)/2 {
		return EquipmentOngoing
	}
	return EquipmentOneTime
}

// rates is the hourly rate and the one-time charges derived with it.
type rates struct {
	hourly  float64
	oneTime float64
}

func (c *Calculator) rates(ctx context.Context, w *Worksheet) rates {
	res := w.Snapshot.Resolver
	var r rates

	if c.enabled(ContributionServiceType) {
		r.hourly += res.Value(ctx, fields.ServiceType, w.Draft)
	}
	if c.enabled(ContributionSameDay) {
		r.hourly += res.Value(ctx, fields.SameDayTurnaround, w.Draft)
	}
	if c.enabled(ContributionProducts) {
		r.hourly += res.Value(ctx, fields.CleaningProducts, w.Draft)
	}
	if c.enabled(ContributionNotPreCleaned) {
		r.hourly += res.Value(ctx, fields.AlreadyCleaned, w.Draft)
	}
	if c.enabled(ContributionEquipment) {
		value := res.Value(ctx, fields.EquipmentArrangement, w.Draft)
		lo, hi, _ := w.Snapshot.Table.ValueRange(fields.CategoryFor(fields.EquipmentArrangement))
		switch ClassifyEquipment(value, lo, hi) {
		case EquipmentOngoing:
			r.hourly += value
		case EquipmentOneTime:
			r.oneTime += value
		}
	}

	r.oneTime += res.Value(ctx, fields.OvenCleaning, w.Draft)
	return r
}
