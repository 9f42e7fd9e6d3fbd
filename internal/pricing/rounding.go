// Package pricing turns a booking draft and a configuration snapshot into a
// quote: billable duration, hourly rate, cleaning cost, scheduling modifiers
// and the final total.
package pricing

import "math"

// RoundMinutes converts minutes to hours in half-hour steps. A remainder
// under 15 minutes rounds down, 15 to 44 minutes adds half an hour and 45
// minutes or more rounds up to the next hour.
func RoundMinutes(minutes float64) float64 {
	if minutes <= 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return 0
	}
	// Absorb float noise such as 119.99999999 from multiplier products.
	minutes = math.Round(minutes*1e6) / 1e6

	hours := math.Floor(minutes / 60)
	remainder := minutes - hours*60
	switch {
	case remainder < 15:
		return hours
	case remainder < 45:
		return hours + 0.5
	default:
		return hours + 1
	}
}

// round2 rounds to currency precision. Applied only when projecting a quote.
func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
