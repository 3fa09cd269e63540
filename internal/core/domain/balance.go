package domain

import (
	"time"
)

// Balance is the single spendable-credit row for an account.
// It is created lazily on first touch and never deleted.
type Balance struct {
	AccountID          string
	Balance            int64
	Tier               Tier
	LastRegenerationAt time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierStudio  Tier = "studio"
)
