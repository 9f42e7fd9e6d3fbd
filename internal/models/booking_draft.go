package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const DraftDateLayout = "2006-01-02"

// Schedule is the requested appointment date and time slot.
type Schedule struct {
	Date     string `json:"date"`
	TimeSlot string `json:"timeSlot"`
	Flexible bool   `json:"flexible"`
}

// BookingDraft is the in-progress quote request. The pricing core only reads it.
type BookingDraft struct {
	ServiceType          string `json:"serviceType"`
	PropertyType         string `json:"propertyType"`
	Bedrooms             string `json:"bedrooms"`
	Bathrooms            string `json:"bathrooms"`
	Toilets              string `json:"toilets"`
	LivingRooms          string `json:"livingRooms"`
	Kitchens             string `json:"kitchens"`
	Frequency            string `json:"frequency"`
	CleaningProducts     string `json:"cleaningProducts"`
	EquipmentArrangement string `json:"equipmentArrangement"`
	AlreadyCleaned       string `json:"alreadyCleaned"`
	SameDayTurnaround    bool   `json:"sameDayTurnaround"`
	LinenHandling        string `json:"linenHandling"`
	Ironing              bool   `json:"ironing"`
	OvenCleaning         string `json:"ovenCleaning"`

	// Quantity maps: option -> quantity.
	AdditionalRooms map[string]int `json:"additionalRooms,omitempty"`
	BedSizes        map[string]int `json:"bedSizes,omitempty"`

	// Extras holds selections for formula-authored fields keyed by field name.
	Extras map[string]any `json:"extras,omitempty"`

	Schedule Schedule `json:"schedule"`
	// EstimatedHours overrides the computed base time when positive.
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	QuotedAt       *time.Time `json:"quotedAt,omitempty"`
}

// Validate rejects drafts whose shape the calculator cannot use. Missing
// selections are valid: they resolve through category defaults.
func (d BookingDraft) Validate() error {
	if d.EstimatedHours != nil {
		hours := *d.EstimatedHours
		if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
			return fmt.Errorf("estimatedHours must be 0 or greater")
		}
	}
	for key, qty := range d.AdditionalRooms {
		if qty < 0 {
			return fmt.Errorf("additionalRooms[%s] must be 0 or greater", key)
		}
	}
	for key, qty := range d.BedSizes {
		if qty < 0 {
			return fmt.Errorf("bedSizes[%s] must be 0 or greater", key)
		}
	}
	if date := strings.TrimSpace(d.Schedule.Date); date != "" {
		if _, err := time.Parse(DraftDateLayout, date); err != nil {
			return fmt.Errorf("schedule.date must be formatted YYYY-MM-DD")
		}
	}
	return nil
}
