package pricing

import (
	"sort"
	"strings"
	"time"

	"github.com/codr1/tidyquote/internal/models"
	"github.com/codr1/tidyquote/internal/schedule"
)

// Tier charges Charge when the appointment is at most WithinHours away.
type Tier struct {
	WithinHours float64
	Charge      float64
}

// DefaultTiers returns the standard short-notice schedule.
func DefaultTiers() []Tier {
	return []Tier{
		{WithinHours: 12, Charge: 50},
		{WithinHours: 24, Charge: 30},
		{WithinHours: 48, Charge: 15},
	}
}

// ShortNoticeCharge returns the charge of the tightest tier containing
// hoursUntil. Appointments already in the past fall in the tightest tier.
func ShortNoticeCharge(hoursUntil float64, tiers []Tier) float64 {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].WithinHours < sorted[j].WithinHours })

	for _, tier := range sorted {
		if hoursUntil <= tier.WithinHours {
			return tier.Charge
		}
	}
	return 0
}

// AppointmentTime combines the draft's date and slot start in loc. A slot
// that cannot be parsed counts as the start of the day. ok is false when the
// draft has no usable date.
func AppointmentTime(s models.Schedule, loc *time.Location) (t time.Time, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	date := strings.TrimSpace(s.Date)
	if date == "" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(models.DraftDateLayout, date, loc)
	if err != nil {
		return time.Time{}, false
	}
	if minute, err := schedule.ParseSlotStart(s.TimeSlot); err == nil {
		day = day.Add(time.Duration(minute) * time.Minute)
	}
	return day, true
}

// HoursUntil returns the hours between now and the draft's appointment.
func HoursUntil(now time.Time, s models.Schedule, loc *time.Location) (float64, bool) {
	at, ok := AppointmentTime(s, loc)
	if !ok {
		return 0, false
	}
	return at.Sub(now).Hours(), true
}
