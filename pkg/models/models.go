// Package models holds the normalized records the indexer persists: blocks,
// transactions, events, and transfers, as described in spec §3. All
// entities are identified by composite natural keys; none carry a
// surrogate ID.
package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Block is a chainweb block header joined with its payload's miner data.
// Primary key: (ChainID, Hash).
type Block struct {
	ChainID      int64
	Hash         string
	Height       int64
	Parent       string
	Weight       decimal.Decimal
	CreationTime time.Time // microsecond precision, UTC
	EpochStart   time.Time // microsecond precision, UTC
	FeatureFlags decimal.Decimal
	Miner        string
	Nonce        decimal.Decimal
	PayloadHash  string
	Predicate    string
	Target       decimal.Decimal // placeholder, always 1 — see Open Questions
	PowHash      string          // reserved, always empty
}

// Transaction is a signed transaction's envelope joined with its execution
// result. Primary key: (Block, RequestKey). Exactly one of GoodResult /
// BadResult is populated.
type Transaction struct {
	RequestKey   string
	Block        string
	ChainID      int64
	Height       int64
	CreationTime time.Time
	Code         *string
	Data         json.RawMessage
	Continuation json.RawMessage
	Gas          int64
	GasPrice     float64
	GasLimit     int64
	GoodResult   json.RawMessage
	BadResult    json.RawMessage
	Logs         *string
	Metadata     json.RawMessage
	Nonce        string
	NumEvents    *int64
	PactID       *string
	Proof        *string
	Rollback     *bool
	Sender       string
	Step         *int64
	TTL          int64
	TxID         *uint64
}

// Event is one entry from a transaction result's event list. Primary key:
// (Block, Idx, RequestKey).
type Event struct {
	Block       string
	ChainID     int64
	Height      int64
	Idx         int64
	Module      string // "ns.name" if namespaced, else "name"
	ModuleHash  string
	Name        string
	Params      json.RawMessage // verbatim JSON array
	ParamText   string          // stringified Params
	QualName    string          // Module + "." + Name
	RequestKey  string
	PactID      *string
}

// Transfer is a projection of a coin.TRANSFER event. Primary key:
// (Block, ChainID, Idx, RequestKey).
type Transfer struct {
	Amount       decimal.Decimal
	Block        string
	ChainID      int64
	CreationTime time.Time // millisecond precision, from the block
	FromAccount  string
	ToAccount    string
	Height       int64
	Idx          int64
	ModuleHash   string
	ModuleName   string
	RequestKey   string
	PactID       *string
}
