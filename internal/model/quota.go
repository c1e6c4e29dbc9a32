package model

import "time"

// Tier is a user's subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// QuotaRecord tracks how many reminder messages a user has received
// today. The counter resets the first time the record is touched on a
// new calendar day.
type QuotaRecord struct {
	UserID        string
	Tier          Tier
	MessagesToday int
	LastReset     time.Time // date only, local to the configured timezone
}
