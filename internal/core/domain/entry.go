package domain

import "time"

// EntryKind represents the business reason for a balance change.
type EntryKind string

const (
	EntrySpend            EntryKind = "SPEND"
	EntryEarnPurchase     EntryKind = "EARN_PURCHASE"
	EntryEarnRegeneration EntryKind = "EARN_REGENERATION"
	EntryEarnBonus        EntryKind = "EARN_BONUS"
	EntryRefund           EntryKind = "REFUND"
)

// LedgerEntry is one immutable, signed record of a balance change.
// Negative Amount means spend. BalanceAfter snapshots the account
// balance at the moment the entry was written, so the per-account
// chain of entries replays to the current balance.
type LedgerEntry struct {
	ID           string
	AccountID    string
	Amount       int64
	Kind         EntryKind
	Source       string
	SourceID     string
	BalanceAfter int64
	Metadata     map[string]string
	CreatedAt    time.Time
}
