package indexer

import (
	"context"

	"chainweb-indexer/pkg/errs"
	"chainweb-indexer/pkg/store"
)

// repairOrphan stages deletion of an orphaned block's transfers, events,
// transactions, and the block row itself, in dependency order, within tx
// (spec §4.6, §4.7, grounded on indexer.rs's delete_block_data). Called
// only when a live-tail insert has surfaced a unique-key conflict, meaning
// a block already occupies this chain/height: a competing block, or, on a
// re-run of the same header, the block itself. The caller
// commits tx together with the replacement block's insert, so the orphan's
// removal and the replacement's arrival are never visible as separate
// commits.
func (ix *Indexer) repairOrphan(ctx context.Context, tx store.Tx, chainID int64, orphanHash string) error {
	if err := tx.Transfers().DeleteByBlockHashAndChain(ctx, orphanHash, chainID); err != nil {
		return errs.Store(err)
	}
	if err := tx.Events().DeleteByBlockHash(ctx, orphanHash); err != nil {
		return errs.Store(err)
	}
	if err := tx.Transactions().DeleteByBlockHash(ctx, orphanHash); err != nil {
		return errs.Store(err)
	}
	if err := tx.Blocks().DeleteByHash(ctx, chainID, orphanHash); err != nil {
		return errs.Store(err)
	}
	return nil
}
