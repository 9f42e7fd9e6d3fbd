package models

import "time"

// ModifierDetail records one applied scheduling modifier. Amount is signed:
// positive values were charged, negative values were discounted.
type ModifierDetail struct {
	RuleID   int64    `json:"ruleId"`
	RuleType RuleType `json:"ruleType"`
	Label    string   `json:"label"`
	Amount   float64  `json:"amount"`
}

// QuoteResult is the projected quote. All amounts share the platform currency.
type QuoteResult struct {
	BaseTime          float64          `json:"baseTime"`
	ComputedBaseTime  float64          `json:"computedBaseTime"`
	IsUserOverride    bool             `json:"isUserOverride"`
	AdditionalTime    float64          `json:"additionalTime"`
	TotalHours        float64          `json:"totalHours"`
	HourlyRate        float64          `json:"hourlyRate"`
	CleaningCost      float64          `json:"cleaningCost"`
	ShortNoticeCharge float64          `json:"shortNoticeCharge"`
	OneTimeCharge     float64          `json:"oneTimeCharge"`
	AdditionalCharge  float64          `json:"additionalCharge"`
	Discount          float64          `json:"discount"`
	TotalCost         float64          `json:"totalCost"`
	Modifiers         []ModifierDetail `json:"modifiers"`
	Strategy          string           `json:"strategy"`
	SnapshotVersion   string           `json:"snapshotVersion"`
}

// QuoteRecord is a persisted quote kept for audit.
type QuoteRecord struct {
	ID              string       `json:"id"`
	Draft           BookingDraft `json:"draft"`
	Result          QuoteResult  `json:"result"`
	SnapshotVersion string       `json:"snapshotVersion"`
	CreatedAt       time.Time    `json:"createdAt"`
}
