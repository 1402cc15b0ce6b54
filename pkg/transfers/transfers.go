// Package transfers projects coin.TRANSFER events into Transfer records
// (spec §4.4), grounded on original_source/transfers.rs's make_transfer
// and is_balance_transfer behavior.
package transfers

import (
	"encoding/json"
	"time"

	"chainweb-indexer/pkg/decode"
	"chainweb-indexer/pkg/errs"
	"chainweb-indexer/pkg/models"
)

// IsTransfer reports whether ev is a coin.TRANSFER event, the only event
// shape that projects into a Transfer row.
func IsTransfer(ev models.Event) bool {
	return ev.Module == "coin" && ev.Name == "TRANSFER"
}

// MakeTransfer builds a Transfer from a coin.TRANSFER event and the block
// it occurred in. Event params are decoded positionally as
// [fromAccount, toAccount, amount]; a malformed amount decodes to zero
// rather than failing the whole batch (spec §8). The event's own
// creation time isn't meaningful — the original indexer stamps transfers
// with the owning block's creation time truncated to millisecond
// precision, which this preserves.
func MakeTransfer(ev models.Event, blk models.Block) (models.Transfer, error) {
	var params []json.RawMessage
	if err := json.Unmarshal(ev.Params, &params); err != nil {
		return models.Transfer{}, errs.Decode("event_params", err)
	}

	var from, to string
	var amount json.RawMessage
	if len(params) > 0 {
		from = decode.StringScalar(params[0])
	}
	if len(params) > 1 {
		to = decode.StringScalar(params[1])
	}
	if len(params) > 2 {
		amount = params[2]
	}

	return models.Transfer{
		Amount:       decode.AmountScalar(amount),
		Block:        ev.Block,
		ChainID:      ev.ChainID,
		CreationTime: blk.CreationTime.Truncate(time.Millisecond),
		FromAccount:  from,
		ToAccount:    to,
		Height:       ev.Height,
		Idx:          ev.Idx,
		ModuleHash:   ev.ModuleHash,
		ModuleName:   ev.Module,
		RequestKey:   ev.RequestKey,
		PactID:       ev.PactID,
	}, nil
}

// BuildTransfers filters events to coin.TRANSFER events and projects each
// into a Transfer, joining against the owning block for its creation
// time. A block missing from blocksByHash is a programmer error (every
// event in a batch is produced alongside its block), so such events are
// skipped rather than aborting the whole batch.
func BuildTransfers(events []models.Event, blocksByHash map[string]models.Block) ([]models.Transfer, error) {
	var out []models.Transfer
	for _, ev := range events {
		if !IsTransfer(ev) {
			continue
		}
		blk, ok := blocksByHash[ev.Block]
		if !ok {
			continue
		}
		t, err := MakeTransfer(ev, blk)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
