package fields

import (
	"sort"

	"github.com/codr1/tidyquote/internal/models"
)

// Normalized names of the fields a booking draft carries.
const (
	ServiceType          = "servicetype"
	PropertyType         = "propertytype"
	Bedrooms             = "bedrooms"
	Bathrooms            = "bathrooms"
	Toilets              = "toilets"
	LivingRooms          = "livingrooms"
	Kitchens             = "kitchens"
	Frequency            = "frequency"
	CleaningProducts     = "cleaningproducts"
	EquipmentArrangement = "equipmentarrangement"
	AlreadyCleaned       = "alreadycleaned"
	SameDayTurnaround    = "samedayturnaround"
	LinenHandling        = "linenhandling"
	Ironing              = "ironing"
	OvenCleaning         = "ovencleaning"
	AdditionalRooms      = "additionalrooms"
	BedSizes             = "bedsizes"
)

type fieldSpec struct {
	category string
	quantity bool
}

var registry = map[string]fieldSpec{
	ServiceType:          {category: "Service Type"},
	PropertyType:         {category: "Property Type"},
	Bedrooms:             {category: "Bedrooms"},
	Bathrooms:            {category: "Bathrooms"},
	Toilets:              {category: "Toilets"},
	LivingRooms:          {category: "Living Rooms"},
	Kitchens:             {category: "Kitchens"},
	Frequency:            {category: "Frequency"},
	CleaningProducts:     {category: "Cleaning Products"},
	EquipmentArrangement: {category: "Equipment Arrangement"},
	AlreadyCleaned:       {category: "Already Cleaned"},
	SameDayTurnaround:    {category: "Same Day Turnaround"},
	LinenHandling:        {category: "Linen Handling"},
	Ironing:              {category: "Ironing"},
	OvenCleaning:         {category: "Oven Cleaning"},
	AdditionalRooms:      {category: "Additional Rooms", quantity: true},
	BedSizes:             {category: "Bed Sizes", quantity: true},
}

// CategoryFor returns the configuration category that owns field. Fields
// outside the built-in set are their own category.
func CategoryFor(field string) string {
	if entry, ok := registry[Normalize(field)]; ok {
		return entry.category
	}
	return field
}

// IsQuantityField reports whether field is an option -> quantity map.
func IsQuantityField(field string) bool {
	return registry[Normalize(field)].quantity
}

// KnownFields returns the normalized built-in field names plus the
// normalized categories of configs, sorted. Formulas may reference any of
// them by Identifier. Reserved categories are left out.
func KnownFields(configs []models.FieldConfig) []string {
	seen := make(map[string]struct{}, len(registry)+len(configs))
	for name := range registry {
		seen[name] = struct{}{}
	}
	for _, cfg := range configs {
		if ValidateCategory(cfg.Category) != nil {
			continue
		}
		if key := Normalize(cfg.Category); key != "" {
			seen[key] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
