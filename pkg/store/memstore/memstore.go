// Package memstore is the in-memory Store implementation (spec §4.2): a
// mutex-guarded map plus ordered scans, one map per entity keyed by its
// composite natural key instead of a single byte-string keyspace.
package memstore

import (
	"context"
	"sort"
	"sync"

	"chainweb-indexer/pkg/errs"
	"chainweb-indexer/pkg/models"
	"chainweb-indexer/pkg/store"
)

type blockKey struct {
	chainID int64
	hash    string
}

type txKey struct {
	block      string
	requestKey string
}

type eventKey struct {
	block      string
	idx        int64
	requestKey string
}

type transferKey struct {
	block      string
	chainID    int64
	idx        int64
	requestKey string
}

// Store is the concrete in-memory Store. All state lives under one
// mutex; writes issued through a Tx are staged and only merged into this
// state on Commit, so a failed or abandoned transaction never leaves
// partial state visible to readers.
type Store struct {
	mu sync.RWMutex

	blocks       map[blockKey]models.Block
	transactions map[txKey]models.Transaction
	events       map[eventKey]models.Event
	transfers    map[transferKey]models.Transfer
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		blocks:       make(map[blockKey]models.Block),
		transactions: make(map[txKey]models.Transaction),
		events:       make(map[eventKey]models.Event),
		transfers:    make(map[transferKey]models.Transfer),
	}
}

func (s *Store) Blocks() store.BlocksStore             { return blocksStore{s} }
func (s *Store) Transactions() store.TransactionsStore { return txStore{s} }
func (s *Store) Events() store.EventsStore             { return eventsStore{s} }
func (s *Store) Transfers() store.TransfersStore       { return transfersStore{s} }

// Begin opens a staged transaction against s.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	return &tx{
		parent:          s,
		blocksIns:       map[blockKey]models.Block{},
		blocksDel:       map[blockKey]bool{},
		txsIns:          map[txKey]models.Transaction{},
		txsDelBlock:     map[string]bool{},
		eventsIns:       map[eventKey]models.Event{},
		eventsDelBlock:  map[string]bool{},
		transfersIns:    map[transferKey]models.Transfer{},
		transfersDelKey: map[string]bool{},
	}, nil
}

// ---- Blocks ----

type blocksStore struct{ s *Store }

func (b blocksStore) FindByHash(ctx context.Context, chainID int64, hash string) (*models.Block, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	if blk, ok := b.s.blocks[blockKey{chainID, hash}]; ok {
		cp := blk
		return &cp, nil
	}
	return nil, nil
}

func (b blocksStore) FindByHeight(ctx context.Context, chainID int64, height int64) ([]models.Block, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	var out []models.Block
	for _, blk := range b.s.blocks {
		if blk.ChainID == chainID && blk.Height == height {
			out = append(out, blk)
		}
	}
	return out, nil
}

func (b blocksStore) FindByHashes(ctx context.Context, hashes []string) ([]models.Block, error) {
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	var out []models.Block
	for _, blk := range b.s.blocks {
		if want[blk.Hash] {
			out = append(out, blk)
		}
	}
	return out, nil
}

func (b blocksStore) FindByRange(ctx context.Context, chainID int64, minHeight, maxHeight int64) ([]models.Block, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	var out []models.Block
	for _, blk := range b.s.blocks {
		if blk.ChainID == chainID && blk.Height >= minHeight && blk.Height <= maxHeight {
			out = append(out, blk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height > out[j].Height })
	return out, nil
}

func (b blocksStore) FindMinMaxHeight(ctx context.Context, chainID int64) (*models.Block, *models.Block, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	var min, max *models.Block
	for key, blk := range b.s.blocks {
		if key.chainID != chainID {
			continue
		}
		cp := blk
		if min == nil || blk.Height < min.Height {
			min = &cp
		}
		if max == nil || blk.Height > max.Height {
			max = &cp
		}
	}
	return min, max, nil
}

func (b blocksStore) Count(ctx context.Context, chainID int64) (int64, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	var n int64
	for key := range b.s.blocks {
		if key.chainID == chainID {
			n++
		}
	}
	return n, nil
}

func (b blocksStore) InsertBatch(ctx context.Context, blocks []models.Block) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	for _, blk := range blocks {
		key := blockKey{blk.ChainID, blk.Hash}
		if _, exists := b.s.blocks[key]; exists {
			continue // conflict-ignore, per spec §4.5 batch insert semantics
		}
		b.s.blocks[key] = blk
	}
	return nil
}

func (b blocksStore) DeleteByHash(ctx context.Context, chainID int64, hash string) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	delete(b.s.blocks, blockKey{chainID, hash})
	return nil
}

// ---- Transactions ----

type txStore struct{ s *Store }

func (t txStore) FindByRequestKey(ctx context.Context, requestKeys []string) ([]models.Transaction, error) {
	want := make(map[string]bool, len(requestKeys))
	for _, k := range requestKeys {
		want[k] = true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []models.Transaction
	for _, tx := range t.s.transactions {
		if want[tx.RequestKey] {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (t txStore) FindByPactID(ctx context.Context, pactID string) ([]models.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []models.Transaction
	for _, tx := range t.s.transactions {
		if tx.PactID != nil && *tx.PactID == pactID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := int64(0), int64(0)
		if out[i].Step != nil {
			si = *out[i].Step
		}
		if out[j].Step != nil {
			sj = *out[j].Step
		}
		return si < sj
	})
	return out, nil
}

func (t txStore) DeleteByBlockHash(ctx context.Context, blockHash string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for key := range t.s.transactions {
		if key.block == blockHash {
			delete(t.s.transactions, key)
		}
	}
	return nil
}

// ---- Events ----

type eventsStore struct{ s *Store }

func (e eventsStore) FindByRange(ctx context.Context, chainID int64, minHeight, maxHeight int64) ([]models.Event, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	var out []models.Event
	for _, ev := range e.s.events {
		if ev.ChainID == chainID && ev.Height >= minHeight && ev.Height <= maxHeight {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (e eventsStore) FindMaxHeight(ctx context.Context, chainID int64) (int64, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	var max int64
	for _, ev := range e.s.events {
		if ev.ChainID == chainID && ev.Height > max {
			max = ev.Height
		}
	}
	return max, nil
}

func (e eventsStore) DeleteByBlockHash(ctx context.Context, blockHash string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for key := range e.s.events {
		if key.block == blockHash {
			delete(e.s.events, key)
		}
	}
	return nil
}

// ---- Transfers ----

type transfersStore struct{ s *Store }

func (tr transfersStore) Find(ctx context.Context, fromAccount, toAccount *string, chainID *int64) ([]models.Transfer, error) {
	tr.s.mu.RLock()
	defer tr.s.mu.RUnlock()
	var out []models.Transfer
	for _, t := range tr.s.transfers {
		if fromAccount != nil && t.FromAccount != *fromAccount {
			continue
		}
		if toAccount != nil && t.ToAccount != *toAccount {
			continue
		}
		if chainID != nil && t.ChainID != *chainID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (tr transfersStore) DeleteByBlockHashAndChain(ctx context.Context, blockHash string, chainID int64) error {
	tr.s.mu.Lock()
	defer tr.s.mu.Unlock()
	for key := range tr.s.transfers {
		if key.block == blockHash && key.chainID == chainID {
			delete(tr.s.transfers, key)
		}
	}
	return nil
}

// ---- Transaction handle ----

type tx struct {
	parent *Store

	blocksIns map[blockKey]models.Block
	blocksDel map[blockKey]bool

	txsIns      map[txKey]models.Transaction
	txsDelBlock map[string]bool

	eventsIns      map[eventKey]models.Event
	eventsDelBlock map[string]bool

	transfersIns    map[transferKey]models.Transfer
	transfersDelKey map[string]bool // "block|chainID"

	done bool
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errs.Store(errTxAlreadyDone)
	}
	t.done = true

	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()

	for key := range t.blocksDel {
		delete(t.parent.blocks, key)
	}
	for key, blk := range t.blocksIns {
		t.parent.blocks[key] = blk
	}

	for block := range t.txsDelBlock {
		for key := range t.parent.transactions {
			if key.block == block {
				delete(t.parent.transactions, key)
			}
		}
	}
	for key, v := range t.txsIns {
		t.parent.transactions[key] = v
	}

	for block := range t.eventsDelBlock {
		for key := range t.parent.events {
			if key.block == block {
				delete(t.parent.events, key)
			}
		}
	}
	for key, v := range t.eventsIns {
		t.parent.events[key] = v
	}

	for delKey := range t.transfersDelKey {
		block, chainID := splitTransferDelKey(delKey)
		for key := range t.parent.transfers {
			if key.block == block && key.chainID == chainID {
				delete(t.parent.transfers, key)
			}
		}
	}
	for key, v := range t.transfersIns {
		t.parent.transfers[key] = v
	}

	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

func (t *tx) Blocks() store.BlocksTx             { return blocksTx{t} }
func (t *tx) Transactions() store.TransactionsTx { return txTx{t} }
func (t *tx) Events() store.EventsTx             { return eventsTx{t} }
func (t *tx) Transfers() store.TransfersTx       { return transfersTx{t} }

type blocksTx struct{ t *tx }

// Insert surfaces a conflict when a block already occupies this chain and
// height under a different hash, even though (chain_id, hash) is the
// primary key: only one block per chain per height is valid outside a
// transient reorg window, and the live-tail path relies on this to
// detect reorgs (spec §4.6, grounded on indexer.rs's save_block, whose
// UniqueViolation fires on (chain_id, height), not (chain_id, hash)).
// Conflict detection ignores any key already staged for deletion in t:
// the live-tail path stages an orphan's deletion and the replacement
// block's insert in the same transaction, and the retried insert must
// not conflict with the row it is about to replace.
func (b blocksTx) Insert(ctx context.Context, block models.Block) error {
	key := blockKey{block.ChainID, block.Hash}
	b.t.parent.mu.RLock()
	defer b.t.parent.mu.RUnlock()

	if _, exists := b.t.parent.blocks[key]; exists && !b.t.blocksDel[key] {
		return errs.NewConflict(errBlockExists)
	}
	for k, existing := range b.t.parent.blocks {
		if b.t.blocksDel[k] {
			continue
		}
		if k.chainID == block.ChainID && existing.Height == block.Height && k.hash != block.Hash {
			return errs.NewConflict(errBlockExists)
		}
	}
	b.t.blocksIns[key] = block
	return nil
}

func (b blocksTx) InsertBatch(ctx context.Context, blocks []models.Block) error {
	for _, blk := range blocks {
		b.t.blocksIns[blockKey{blk.ChainID, blk.Hash}] = blk
	}
	return nil
}

func (b blocksTx) DeleteByHash(ctx context.Context, chainID int64, hash string) error {
	b.t.blocksDel[blockKey{chainID, hash}] = true
	return nil
}

type txTx struct{ t *tx }

func (x txTx) InsertBatch(ctx context.Context, txs []models.Transaction) error {
	for _, tr := range txs {
		x.t.txsIns[txKey{tr.Block, tr.RequestKey}] = tr
	}
	return nil
}

func (x txTx) DeleteByBlockHash(ctx context.Context, blockHash string) error {
	x.t.txsDelBlock[blockHash] = true
	return nil
}

type eventsTx struct{ t *tx }

func (e eventsTx) InsertBatch(ctx context.Context, events []models.Event) error {
	for _, ev := range events {
		e.t.eventsIns[eventKey{ev.Block, ev.Idx, ev.RequestKey}] = ev
	}
	return nil
}

func (e eventsTx) DeleteByBlockHash(ctx context.Context, blockHash string) error {
	e.t.eventsDelBlock[blockHash] = true
	return nil
}

type transfersTx struct{ t *tx }

func (tr transfersTx) InsertBatch(ctx context.Context, transfers []models.Transfer) error {
	for _, v := range transfers {
		tr.t.transfersIns[transferKey{v.Block, v.ChainID, v.Idx, v.RequestKey}] = v
	}
	return nil
}

func (tr transfersTx) DeleteByBlockHashAndChain(ctx context.Context, blockHash string, chainID int64) error {
	tr.t.transfersDelKey[joinTransferDelKey(blockHash, chainID)] = true
	return nil
}
