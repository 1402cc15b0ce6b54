// Package analytics holds the read-model shapes a future analytics layer
// would compute from stored transfers (spec §4.8, Non-goals: the
// computations themselves are out of scope here, but original_source/
// analytics.rs shows the shapes a complete system carries alongside the
// indexing pipeline, so they're kept as placeholders other components
// can grow into).
package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingPeriod describes one address's continuous holding of a token,
// from acquisition to disposal (nil DisposalTime means still held).
type HoldingPeriod struct {
	Address          string
	TokenID           string
	AcquisitionTime   time.Time
	DisposalTime      *time.Time
	AcquisitionAmount decimal.Decimal
	CurrentAmount     decimal.Decimal
}

// WalletConnection summarizes the transfer relationship between two
// accounts.
type WalletConnection struct {
	FromAddress      string
	ToAddress        string
	TotalTransfers   int64
	TotalAmount      decimal.Decimal
	LastTransferTime time.Time
}

// ActivityPeriod summarizes transfer volume within a time window.
type ActivityPeriod struct {
	StartTime        time.Time
	EndTime          time.Time
	TransactionCount int64
	TotalAmount      decimal.Decimal
}
