package domain

import "time"

// Subscription carries the optional scheduled downgrade for an account.
// The billing-cycle trigger applies it at period boundaries; the ledger
// only reads and clears the pending field.
type Subscription struct {
	AccountID            string
	Tier                 Tier
	ScheduledDowngradeTo *Tier
	CurrentPeriodEndsAt  time.Time
	UpdatedAt            time.Time
}
