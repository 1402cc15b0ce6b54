package indexer

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"chainweb-indexer/pkg/chainwebclient"
	"chainweb-indexer/pkg/decode"
	"chainweb-indexer/pkg/errs"
	"chainweb-indexer/pkg/models"
	"chainweb-indexer/pkg/store"
	"chainweb-indexer/pkg/transfers"
)

// ProcessHeader indexes one header from the live-tail path (spec §4.5,
// §4.6, §4.7, grounded on indexer.rs's process_header): fetch its
// payload, build the block, poll its transactions' results, and commit
// the block together with its transactions, events, and transfers in one
// transaction.
func (ix *Indexer) ProcessHeader(ctx context.Context, h chainwebclient.BlockHeader) error {
	payloads, err := ix.client.GetPayloadBatch(ctx, h.ChainID, []string{h.PayloadHash})
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return errs.Fetch(errors.New("no payload returned for header"))
	}
	blk, err := buildBlock(h, payloads[0])
	if err != nil {
		return err
	}

	signedTxs, err := decode.DecodeSignedTransactions(payloads[0].Transactions)
	if err != nil {
		return err
	}

	var results map[string]chainwebclient.PactTransactionResult
	if len(signedTxs) > 0 {
		requestKeys := make([]string, 0, len(signedTxs))
		for rk := range signedTxs {
			requestKeys = append(requestKeys, rk)
		}
		results, err = ix.fetchTransactionResults(ctx, requestKeys, h.ChainID)
		if err != nil {
			return err
		}
	}

	var txs []models.Transaction
	var events []models.Event
	for rk, signedTx := range signedTxs {
		result, ok := results[rk]
		if !ok {
			continue
		}
		tx, err := buildTransaction(signedTx, result, blk)
		if err != nil {
			return err
		}
		txs = append(txs, tx)
		events = append(events, buildEvents(signedTx, result, blk)...)
	}

	xfers, err := transfers.BuildTransfers(events, map[string]models.Block{blk.Hash: blk})
	if err != nil {
		return err
	}

	return ix.commitBlock(ctx, blk, txs, events, xfers)
}

// commitBlock inserts blk, txs, events, and xfers in a single transaction
// (spec §4.5 "Wrap all of (2)-(9) in a single store transaction", §5 "the
// live-tail path holds exactly one connection for the full ... commit").
// A unique-key conflict on the block insert is repaired and retried
// inside the same transaction, so a crash can never leave a block
// committed without its transactions, events, and transfers, or leave a
// reorg repair applied without its replacement block.
func (ix *Indexer) commitBlock(ctx context.Context, blk models.Block, txs []models.Transaction, events []models.Event, xfers []models.Transfer) error {
	tx, err := ix.store.Begin(ctx)
	if err != nil {
		return errs.Store(err)
	}

	if err := ix.insertBlockWithReorgRepair(ctx, tx, blk); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if len(txs) > 0 {
		if err := tx.Transactions().InsertBatch(ctx, txs); err != nil {
			_ = tx.Rollback(ctx)
			return errs.Store(err)
		}
	}
	if len(events) > 0 {
		if err := tx.Events().InsertBatch(ctx, events); err != nil {
			_ = tx.Rollback(ctx)
			return errs.Store(err)
		}
	}
	if len(xfers) > 0 {
		if err := tx.Transfers().InsertBatch(ctx, xfers); err != nil {
			_ = tx.Rollback(ctx)
			return errs.Store(err)
		}
	}
	return tx.Commit(ctx)
}

// insertBlockWithReorgRepair stages blk's insert into tx, surfacing a
// unique-key conflict instead of silencing it (spec §4.6). On conflict,
// it repairs every orphan occupying blk's chain/height within tx and
// retries the insert unconditionally — including when the orphan is blk
// itself, so re-running ProcessHeader on an already-indexed header is an
// idempotent success rather than a surfaced conflict (spec §8 "exactly
// once per block").
func (ix *Indexer) insertBlockWithReorgRepair(ctx context.Context, tx store.Tx, blk models.Block) error {
	insertErr := tx.Blocks().Insert(ctx, blk)
	if insertErr == nil {
		return nil
	}
	if !errors.Is(insertErr, errs.ConflictKind) {
		return insertErr
	}

	ix.log.WithFields(logrus.Fields{
		"chain":  blk.ChainID,
		"height": blk.Height,
		"hash":   blk.Hash,
	}).Warn("reorg detected, repairing orphan")

	orphans, err := ix.store.Blocks().FindByHeight(ctx, blk.ChainID, blk.Height)
	if err != nil {
		return errs.Store(err)
	}
	for _, orphan := range orphans {
		if err := ix.repairOrphan(ctx, tx, blk.ChainID, orphan.Hash); err != nil {
			return err
		}
	}

	if err := tx.Blocks().Insert(ctx, blk); err != nil {
		return errs.Store(err)
	}
	return nil
}

// ListenHeadersStream opens the node's header SSE feed and processes each
// BlockHeader event as it arrives (spec §4.6, §4.7). A per-header
// processing error is logged and the stream continues; the stream
// itself ending (cleanly or with an error) returns to the caller so it
// can decide whether to reconnect.
func (ix *Indexer) ListenHeadersStream(ctx context.Context) error {
	events, errc, err := ix.client.HeadersStream(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return <-errc
			}
			if err := ix.ProcessHeader(ctx, evt.Header); err != nil {
				ix.log.WithError(err).WithField("chain", evt.Header.ChainID).Warn("failed to process live header")
			}
		case err := <-errc:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
