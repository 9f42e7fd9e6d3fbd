package fields

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/tidyquote/internal/models"
)

// Resolved carries the numeric attributes of one field for one draft.
type Resolved struct {
	Value   float64
	Time    float64
	Min     float64
	Max     float64
	Option  string
	Matched bool
}

// Resolver maps draft selections to field attributes. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	table    *Table
	defaults *Defaults
}

func NewResolver(table *Table, defaults *Defaults) *Resolver {
	return &Resolver{table: table, defaults: defaults}
}

// Value returns the value attribute of field for draft.
func (r *Resolver) Value(ctx context.Context, field string, draft models.BookingDraft) float64 {
	return r.Resolve(ctx, field, draft).Value
}

// Time returns the time attribute (minutes) of field for draft.
func (r *Resolver) Time(ctx context.Context, field string, draft models.BookingDraft) float64 {
	return r.Resolve(ctx, field, draft).Time
}

// Resolve looks up field for draft. An empty selection falls back to the
// category default; a selection with no matching config resolves to zero.
func (r *Resolver) Resolve(ctx context.Context, field string, draft models.BookingDraft) Resolved {
	key := Normalize(field)
	category := CategoryFor(key)
	raw := selection(draft, key)

	if quantities, ok := quantityMap(raw); ok || IsQuantityField(key) {
		return r.resolveQuantities(ctx, category, quantities)
	}

	option, ok := optionFromRaw(raw)
	if !ok {
		option, ok = r.defaults.Option(category)
		if !ok {
			return Resolved{}
		}
	}
	return r.lookup(ctx, key, category, option)
}

// Option returns the concrete option used for field after default fallback.
func (r *Resolver) Option(field string, draft models.BookingDraft) (string, bool) {
	key := Normalize(field)
	if option, ok := optionFromRaw(selection(draft, key)); ok {
		return option, true
	}
	return r.defaults.Option(CategoryFor(key))
}

func (r *Resolver) lookup(ctx context.Context, field, category, option string) Resolved {
	cfg, ok := r.table.Lookup(category, option)
	if !ok {
		log.Ctx(ctx).Debug().
			Str("component", "field_resolver").
			Str("field", field).
			Str("category", category).
			Str("option", option).
			Msg("No field configuration matched")
		return Resolved{Option: option}
	}
	return Resolved{
		Value:   cfg.Value,
		Time:    cfg.Time,
		Min:     cfg.Min(),
		Max:     cfg.Max(),
		Option:  cfg.Option,
		Matched: true,
	}
}

func (r *Resolver) resolveQuantities(ctx context.Context, category string, quantities map[string]float64) Resolved {
	keys := make([]string, 0, len(quantities))
	for key, qty := range quantities {
		if qty > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var out Resolved
	for _, key := range keys {
		unit := r.lookup(ctx, key, category, key)
		if !unit.Matched {
			continue
		}
		qty := quantities[key]
		out.Value += unit.Value * qty
		out.Time += unit.Time * qty
		out.Matched = true
	}
	return out
}

// selection returns the raw draft value for a normalized field name.
func selection(d models.BookingDraft, key string) any {
	switch key {
	case ServiceType:
		return d.ServiceType
	case PropertyType:
		return d.PropertyType
	case Bedrooms:
		return d.Bedrooms
	case Bathrooms:
		return d.Bathrooms
	case Toilets:
		return d.Toilets
	case LivingRooms:
		return d.LivingRooms
	case Kitchens:
		return d.Kitchens
	case Frequency:
		return d.Frequency
	case CleaningProducts:
		return d.CleaningProducts
	case EquipmentArrangement:
		return d.EquipmentArrangement
	case AlreadyCleaned:
		return d.AlreadyCleaned
	case SameDayTurnaround:
		return d.SameDayTurnaround
	case LinenHandling:
		return d.LinenHandling
	case Ironing:
		return d.Ironing
	case OvenCleaning:
		return d.OvenCleaning
	case AdditionalRooms:
		return d.AdditionalRooms
	case BedSizes:
		return d.BedSizes
	}
	for name, value := range d.Extras {
		if Normalize(name) == key {
			return value
		}
	}
	return nil
}

// optionFromRaw converts a raw selection to an option string. Empty strings,
// false, zero and nil count as "no selection".
func optionFromRaw(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case bool:
		if !v {
			return "", false
		}
		return "Yes", true
	case int:
		return formatNumber(float64(v))
	case int64:
		return formatNumber(float64(v))
	case float64:
		return formatNumber(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return "", false
		}
		return formatNumber(f)
	default:
		s := strings.TrimSpace(fmt.Sprint(v))
		return s, s != ""
	}
}

func formatNumber(f float64) (string, bool) {
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// quantityMap accepts the typed draft maps and decoded JSON objects.
func quantityMap(raw any) (map[string]float64, bool) {
	switch v := raw.(type) {
	case map[string]int:
		out := make(map[string]float64, len(v))
		for key, qty := range v {
			out[key] = float64(qty)
		}
		return out, true
	case map[string]float64:
		return v, true
	case map[string]any:
		out := make(map[string]float64, len(v))
		for key, value := range v {
			switch qty := value.(type) {
			case float64:
				out[key] = qty
			case int:
				out[key] = float64(qty)
			case json.Number:
				if f, err := qty.Float64(); err == nil {
					out[key] = f
				}
			}
		}
		return out, true
	}
	return nil, false
}
