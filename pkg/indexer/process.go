package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"chainweb-indexer/pkg/chainwebclient"
	"chainweb-indexer/pkg/decode"
	"chainweb-indexer/pkg/errs"
	"chainweb-indexer/pkg/models"
	"chainweb-indexer/pkg/transfers"
)

// ProcessHeaders indexes a batch of headers from the backfill path: fetch
// payloads, build blocks, optionally wipe and rebuild existing rows for
// force-updated blocks, insert everything with conflict-ignore semantics,
// poll transaction results, and build transactions/events/transfers
// (spec §4.5, §4.7, grounded on indexer.rs's process_headers).
func (ix *Indexer) ProcessHeaders(ctx context.Context, headers []chainwebclient.BlockHeader, chain chainwebclient.ChainID, force bool) error {
	payloadHashes := make([]string, len(headers))
	for i, h := range headers {
		payloadHashes[i] = h.PayloadHash
	}
	payloads, err := ix.client.GetPayloadBatch(ctx, chain, payloadHashes)
	if err != nil {
		return err
	}
	payloadByHash := make(map[string]chainwebclient.BlockPayload, len(payloads))
	for _, p := range payloads {
		payloadByHash[p.PayloadHash] = p
	}

	blocks := make([]models.Block, 0, len(headers))
	blocksByHash := make(map[string]models.Block, len(headers))
	signedTxsByBlock := make(map[string]map[string]chainwebclient.SignedTransaction)
	for _, h := range headers {
		payload, ok := payloadByHash[h.PayloadHash]
		if !ok {
			return fmt.Errorf("no payload returned for hash %s", h.PayloadHash)
		}
		blk, err := buildBlock(h, payload)
		if err != nil {
			return err
		}
		blocks = append(blocks, blk)
		blocksByHash[blk.Hash] = blk

		txs, err := decode.DecodeSignedTransactions(payload.Transactions)
		if err != nil {
			return err
		}
		signedTxsByBlock[blk.Hash] = txs
	}

	if force {
		for _, blk := range blocks {
			if err := ix.wipeBlockData(ctx, blk.Hash, blk.ChainID); err != nil {
				return err
			}
		}
	}

	if err := ix.store.Blocks().InsertBatch(ctx, blocks); err != nil {
		return errs.Store(err)
	}

	allRequestKeys := make([]string, 0)
	for _, txs := range signedTxsByBlock {
		for rk := range txs {
			allRequestKeys = append(allRequestKeys, rk)
		}
	}
	if len(allRequestKeys) == 0 {
		return nil
	}

	results, err := ix.fetchTransactionResults(ctx, allRequestKeys, chain)
	if err != nil {
		return err
	}

	var allTxs []models.Transaction
	var allEvents []models.Event
	for blockHash, signedTxs := range signedTxsByBlock {
		blk := blocksByHash[blockHash]
		for rk, signedTx := range signedTxs {
			result, ok := results[rk]
			if !ok {
				continue
			}
			tx, err := buildTransaction(signedTx, result, blk)
			if err != nil {
				return err
			}
			allTxs = append(allTxs, tx)
			allEvents = append(allEvents, buildEvents(signedTx, result, blk)...)
		}
	}

	if len(allTxs) == 0 {
		return nil
	}
	if err := insertTransactionsBatch(ctx, ix, allTxs); err != nil {
		return err
	}

	if len(allEvents) == 0 {
		return nil
	}
	if err := insertEventsBatch(ctx, ix, allEvents); err != nil {
		return err
	}

	xfers, err := transfers.BuildTransfers(allEvents, blocksByHash)
	if err != nil {
		return err
	}
	if len(xfers) == 0 {
		return nil
	}
	return insertTransfersBatch(ctx, ix, xfers)
}

func insertTransactionsBatch(ctx context.Context, ix *Indexer, txs []models.Transaction) error {
	tx, err := ix.store.Begin(ctx)
	if err != nil {
		return errs.Store(err)
	}
	if err := tx.Transactions().InsertBatch(ctx, txs); err != nil {
		_ = tx.Rollback(ctx)
		return errs.Store(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Store(err)
	}
	return nil
}

func insertEventsBatch(ctx context.Context, ix *Indexer, events []models.Event) error {
	tx, err := ix.store.Begin(ctx)
	if err != nil {
		return errs.Store(err)
	}
	if err := tx.Events().InsertBatch(ctx, events); err != nil {
		_ = tx.Rollback(ctx)
		return errs.Store(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Store(err)
	}
	return nil
}

func insertTransfersBatch(ctx context.Context, ix *Indexer, xfers []models.Transfer) error {
	tx, err := ix.store.Begin(ctx)
	if err != nil {
		return errs.Store(err)
	}
	if err := tx.Transfers().InsertBatch(ctx, xfers); err != nil {
		_ = tx.Rollback(ctx)
		return errs.Store(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Store(err)
	}
	return nil
}

// wipeBlockData deletes a block's transfers, events, transactions, and
// the block row itself, in dependency order, before a force re-index
// rebuilds it (spec §4.5 force_update path).
func (ix *Indexer) wipeBlockData(ctx context.Context, blockHash string, chainID int64) error {
	tx, err := ix.store.Begin(ctx)
	if err != nil {
		return errs.Store(err)
	}
	if err := tx.Transfers().DeleteByBlockHashAndChain(ctx, blockHash, chainID); err != nil {
		_ = tx.Rollback(ctx)
		return errs.Store(err)
	}
	if err := tx.Events().DeleteByBlockHash(ctx, blockHash); err != nil {
		_ = tx.Rollback(ctx)
		return errs.Store(err)
	}
	if err := tx.Transactions().DeleteByBlockHash(ctx, blockHash); err != nil {
		_ = tx.Rollback(ctx)
		return errs.Store(err)
	}
	if err := tx.Blocks().DeleteByHash(ctx, chainID, blockHash); err != nil {
		_ = tx.Rollback(ctx)
		return errs.Store(err)
	}
	return tx.Commit(ctx)
}

// fetchTransactionResults polls results for requestKeys one key per
// request, up to cfg.PollConcurrency requests in flight at once (spec
// §5). A shard that fails to poll is logged and dropped rather than
// failing the whole batch, matching indexer.rs's fetch_transactions_results.
func (ix *Indexer) fetchTransactionResults(ctx context.Context, requestKeys []string, chain chainwebclient.ChainID) (map[string]chainwebclient.PactTransactionResult, error) {
	type shardResult struct {
		results map[string]chainwebclient.PactTransactionResult
		err     error
		key     string
	}
	out := make(chan shardResult, len(requestKeys))

	for _, rk := range requestKeys {
		rk := rk
		if err := ix.pollSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func() {
			defer ix.pollSem.Release(1)
			res, err := ix.client.Poll(ctx, []string{rk}, chain)
			out <- shardResult{results: res, err: err, key: rk}
		}()
	}

	merged := make(map[string]chainwebclient.PactTransactionResult, len(requestKeys))
	for range requestKeys {
		sr := <-out
		if sr.err != nil {
			ix.log.WithError(sr.err).WithField("request_key", sr.key).Warn("poll failed, dropping")
			continue
		}
		for k, v := range sr.results {
			merged[k] = v
		}
	}
	return merged, nil
}

// buildBlock joins a header with its payload's miner data into a stored
// Block (spec §3, §4.3, grounded on indexer.rs's build_block). Target is
// a fixed placeholder per the Open Questions decision in DESIGN.md.
func buildBlock(h chainwebclient.BlockHeader, payload chainwebclient.BlockPayload) (models.Block, error) {
	miner, err := decode.DecodeMinerData(payload.MinerData)
	if err != nil {
		return models.Block{}, err
	}

	weight, err := decimal.NewFromString(h.Weight)
	if err != nil {
		weight = decimal.Zero
	}
	nonce, err := decimal.NewFromString(h.Nonce)
	if err != nil {
		nonce = decimal.Zero
	}
	flags, err := decimal.NewFromString(h.FeatureFlags.String())
	if err != nil {
		flags = decimal.Zero
	}

	return models.Block{
		ChainID:      int64(h.ChainID),
		Hash:         string(h.Hash),
		Height:       h.Height,
		Parent:       string(h.Parent),
		Weight:       weight,
		CreationTime: time.UnixMicro(h.CreationTime).UTC(),
		EpochStart:   time.UnixMicro(h.EpochStart).UTC(),
		FeatureFlags: flags,
		Miner:        string(miner.Account),
		Nonce:        nonce,
		PayloadHash:  h.PayloadHash,
		Predicate:    string(miner.Predicate),
		Target:       decimal.NewFromInt(1),
		PowHash:      "",
	}, nil
}

// buildTransaction joins a signed transaction's envelope with its
// execution result into a stored Transaction (spec §3, §4.3, grounded on
// indexer.rs's build_transaction). A cmd that fails to parse is a fatal,
// not skippable, error (spec §7).
func buildTransaction(signedTx chainwebclient.SignedTransaction, result chainwebclient.PactTransactionResult, blk models.Block) (models.Transaction, error) {
	cmd, err := decode.DecodeCommand(signedTx)
	if err != nil {
		return models.Transaction{}, err
	}

	var code *string
	var data json.RawMessage
	var proof *string

	if cmd.Payload.Exec != nil {
		code = &cmd.Payload.Exec.Code
		data = cmd.Payload.Exec.Data
	} else if cmd.Payload.Cont != nil {
		data = cmd.Payload.Cont.Data
		proof = cmd.Payload.Cont.Proof
	}

	pactID, step, rollback := continuationFields(result.Continuation)

	var logs *string
	if result.Logs != "" {
		l := result.Logs
		logs = &l
	}

	var numEvents *int64
	if result.Events != nil {
		n := int64(len(*result.Events))
		numEvents = &n
	}

	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		return models.Transaction{}, errs.Decode("metadata", err)
	}

	chainID, err := parseChainID(cmd.Meta.ChainID)
	if err != nil {
		return models.Transaction{}, err
	}

	return models.Transaction{
		RequestKey:   result.RequestKey,
		Block:        blk.Hash,
		ChainID:      chainID,
		Height:       blk.Height,
		CreationTime: time.UnixMicro(result.Metadata.BlockTime).UTC(),
		Code:         code,
		Data:         data,
		Continuation: result.Continuation,
		Gas:          result.Gas,
		GasPrice:     cmd.Meta.GasPrice,
		GasLimit:     cmd.Meta.GasLimit,
		GoodResult:   result.Result.Data,
		BadResult:    result.Result.Error,
		Logs:         logs,
		Metadata:     metadata,
		Nonce:        cmd.Nonce,
		NumEvents:    numEvents,
		PactID:       pactID,
		Proof:        proof,
		Rollback:     rollback,
		Sender:       cmd.Meta.Sender,
		Step:         step,
		TTL:          cmd.Meta.TTL,
		TxID:         result.TxID,
	}, nil
}

// buildEvents normalizes a transaction result's wire events into stored
// Event rows (spec §3, §4.3, grounded on indexer.rs's build_events):
// Module is the namespaced name when a namespace is present, QualName is
// Module + "." + Name, and Idx preserves wire order.
func buildEvents(signedTx chainwebclient.SignedTransaction, result chainwebclient.PactTransactionResult, blk models.Block) []models.Event {
	if result.Events == nil {
		return nil
	}
	pactID, _, _ := continuationFields(result.Continuation)

	out := make([]models.Event, 0, len(*result.Events))
	for i, we := range *result.Events {
		module := we.Module.Name
		if we.Module.Namespace != nil && *we.Module.Namespace != "" {
			module = *we.Module.Namespace + "." + we.Module.Name
		}
		out = append(out, models.Event{
			Block:      blk.Hash,
			ChainID:    blk.ChainID,
			Height:     blk.Height,
			Idx:        int64(i),
			Module:     module,
			ModuleHash: we.ModuleHash,
			Name:       we.Name,
			Params:     we.Params,
			ParamText:  string(we.Params),
			QualName:   module + "." + we.Name,
			RequestKey: result.RequestKey,
			PactID:     pactID,
		})
	}
	return out
}

// continuationFields extracts pact_id, step, and step_has_rollback from a
// transaction result's continuation object, so the stored pact_id/step/
// rollback always agree with the stored continuation (spec §3 Transaction,
// grounded on indexer.rs's build_transaction/build_events, which read
// pact_result.continuation rather than the command's cont payload).
func continuationFields(continuation json.RawMessage) (pactID *string, step *int64, rollback *bool) {
	if len(continuation) == 0 || string(continuation) == "null" {
		return nil, nil, nil
	}
	var cont struct {
		PactID   string `json:"pactId"`
		Step     int64  `json:"step"`
		Rollback bool   `json:"stepHasRollback"`
	}
	if err := json.Unmarshal(continuation, &cont); err != nil {
		return nil, nil, nil
	}
	return &cont.PactID, &cont.Step, &cont.Rollback
}

func parseChainID(s string) (int64, error) {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, errs.Decode("meta.chainId", err)
	}
	return n, nil
}
