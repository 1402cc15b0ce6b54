// Package store defines the indexer's storage contract (spec §4.2): the
// relational database is an external collaborator, modeled here as a
// transactional, natural-keyed store per entity. memstore provides the
// one concrete, in-process implementation; a relational driver would
// implement the same interfaces against a real database.
package store

import (
	"context"

	"chainweb-indexer/pkg/models"
)

// Tx is a staged unit of work. Nothing written through a Tx is visible to
// other readers until Commit returns successfully; Rollback discards it.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Blocks() BlocksTx
	Transactions() TransactionsTx
	Events() EventsTx
	Transfers() TransfersTx
}

// Store is the top-level handle the indexer is given. Reads can be issued
// directly; writes that must be atomic together go through Begin.
type Store interface {
	Blocks() BlocksStore
	Transactions() TransactionsStore
	Events() EventsStore
	Transfers() TransfersStore

	Begin(ctx context.Context) (Tx, error)
}

// BlocksStore is the read surface and outside-a-transaction write surface
// for blocks.
type BlocksStore interface {
	FindByHash(ctx context.Context, chainID int64, hash string) (*models.Block, error)
	FindByHeight(ctx context.Context, chainID int64, height int64) ([]models.Block, error)
	FindByHashes(ctx context.Context, hashes []string) ([]models.Block, error)
	FindByRange(ctx context.Context, chainID int64, minHeight, maxHeight int64) ([]models.Block, error)
	// FindMinMaxHeight returns the lowest- and highest-height blocks
	// known for chainID. Either may be nil if the chain has no blocks
	// yet; per spec §4.5 both are present or both are absent.
	FindMinMaxHeight(ctx context.Context, chainID int64) (min, max *models.Block, err error)
	Count(ctx context.Context, chainID int64) (int64, error)

	// InsertBatch inserts blocks, ignoring rows that collide on the
	// (chain_id, hash) primary key (spec §4.5 backfill path).
	InsertBatch(ctx context.Context, blocks []models.Block) error
	// DeleteByHash removes the block row only. It neither deletes nor
	// checks for dependent transaction, event, or transfer rows; pkg/
	// indexer's reorg repair deletes those before the block.
	DeleteByHash(ctx context.Context, chainID int64, hash string) error
}

// BlocksTx is the transaction-scoped write surface for blocks. Insert
// surfaces a unique-key violation instead of silently ignoring it, so the
// live-tail path can detect a reorg (spec §4.5, §4.6).
type BlocksTx interface {
	Insert(ctx context.Context, block models.Block) error
	InsertBatch(ctx context.Context, blocks []models.Block) error
	DeleteByHash(ctx context.Context, chainID int64, hash string) error
}

// TransactionsStore is the read surface for transactions.
type TransactionsStore interface {
	FindByRequestKey(ctx context.Context, requestKeys []string) ([]models.Transaction, error)
	FindByPactID(ctx context.Context, pactID string) ([]models.Transaction, error)
	DeleteByBlockHash(ctx context.Context, blockHash string) error
}

// TransactionsTx is the transaction-scoped write surface for transactions.
type TransactionsTx interface {
	InsertBatch(ctx context.Context, txs []models.Transaction) error
	DeleteByBlockHash(ctx context.Context, blockHash string) error
}

// EventsStore is the read surface for events.
type EventsStore interface {
	FindByRange(ctx context.Context, chainID int64, minHeight, maxHeight int64) ([]models.Event, error)
	FindMaxHeight(ctx context.Context, chainID int64) (int64, error)
	DeleteByBlockHash(ctx context.Context, blockHash string) error
}

// EventsTx is the transaction-scoped write surface for events.
type EventsTx interface {
	InsertBatch(ctx context.Context, events []models.Event) error
	DeleteByBlockHash(ctx context.Context, blockHash string) error
}

// TransfersStore is the read surface for transfers.
type TransfersStore interface {
	// Find filters by optional fromAccount/toAccount/chainID, matching
	// the original repository's ad hoc filtered-find query (spec §3
	// Transfer, supplemented per original_source/transfers.rs).
	Find(ctx context.Context, fromAccount, toAccount *string, chainID *int64) ([]models.Transfer, error)
	DeleteByBlockHashAndChain(ctx context.Context, blockHash string, chainID int64) error
}

// TransfersTx is the transaction-scoped write surface for transfers.
type TransfersTx interface {
	InsertBatch(ctx context.Context, transfers []models.Transfer) error
	DeleteByBlockHashAndChain(ctx context.Context, blockHash string, chainID int64) error
}
