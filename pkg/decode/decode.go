// Package decode turns the base64url-and-JSON wire shapes chainweb uses
// for payload elements into the chainwebclient types, plus the
// amount-scalar decoding contract spec §4.3/§8 requires for transfer
// amounts.
package decode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/shopspring/decimal"

	"chainweb-indexer/pkg/chainwebclient"
	"chainweb-indexer/pkg/errs"
)

// base64URL decodes s as unpadded base64url, the encoding chainweb uses
// for miner data and payload transaction elements.
func base64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	// some node versions pad; tolerate both.
	return base64.URLEncoding.DecodeString(s)
}

// MinerData is the decoded shape of a block payload's miner_data field.
// Account and Predicate are kept as raw JSON so their on-wire quoting is
// preserved verbatim when stored, matching the original indexer's
// behavior of round-tripping these fields through serde_json::Value
// rather than normalizing them to bare strings.
type MinerData struct {
	Account   json.RawMessage `json:"account"`
	Predicate json.RawMessage `json:"predicate"`
}

// DecodeMinerData base64url-decodes and parses a block payload's
// miner_data field.
func DecodeMinerData(encoded string) (MinerData, error) {
	raw, err := base64URL(encoded)
	if err != nil {
		return MinerData{}, errs.Decode("miner_data", err)
	}
	var md MinerData
	if err := json.Unmarshal(raw, &md); err != nil {
		return MinerData{}, errs.Decode("miner_data", err)
	}
	return md, nil
}

// DecodeSignedTransaction base64url-decodes and parses one
// payload.transactions[] element.
func DecodeSignedTransaction(encoded string) (chainwebclient.SignedTransaction, error) {
	raw, err := base64URL(encoded)
	if err != nil {
		return chainwebclient.SignedTransaction{}, errs.Decode("transaction", err)
	}
	var tx chainwebclient.SignedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return chainwebclient.SignedTransaction{}, errs.Decode("transaction", err)
	}
	return tx, nil
}

// DecodeSignedTransactions decodes every element of a payload's
// transactions list, keyed by request key (the hash field), so later
// pipeline stages can join poll() results back to their envelope. A
// transaction whose cmd does not parse as a Command is fatal to the whole
// batch (spec §7: a bad cmd is fatal, not skippable).
func DecodeSignedTransactions(encoded []string) (map[string]chainwebclient.SignedTransaction, error) {
	out := make(map[string]chainwebclient.SignedTransaction, len(encoded))
	for _, e := range encoded {
		tx, err := DecodeSignedTransaction(e)
		if err != nil {
			return nil, err
		}
		var cmd chainwebclient.Command
		if err := json.Unmarshal([]byte(tx.Cmd), &cmd); err != nil {
			return nil, errs.Decode("cmd", err)
		}
		out[tx.Hash] = tx
	}
	return out, nil
}

// DecodeCommand parses a SignedTransaction's Cmd field.
func DecodeCommand(tx chainwebclient.SignedTransaction) (chainwebclient.Command, error) {
	var cmd chainwebclient.Command
	if err := json.Unmarshal([]byte(tx.Cmd), &cmd); err != nil {
		return chainwebclient.Command{}, errs.Decode("cmd", err)
	}
	return cmd, nil
}

// AmountScalar decodes a Pact event parameter that's expected to carry a
// token amount, per the contract spec §4.4/§8 fixes: a bare JSON number
// decodes directly; {"decimal":"..."} decodes preserving the string's
// exact scale; {"int":N} decodes as an integer decimal; anything else
// (including a JSON string) decodes to zero rather than erroring, since a
// malformed amount must not abort indexing.
func AmountScalar(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}

	var asDecimalObj struct {
		Decimal string `json:"decimal"`
	}
	if err := json.Unmarshal(raw, &asDecimalObj); err == nil && asDecimalObj.Decimal != "" {
		if d, err := decimal.NewFromString(asDecimalObj.Decimal); err == nil {
			return d
		}
		return decimal.Zero
	}

	var asIntObj struct {
		Int json.Number `json:"int"`
	}
	if err := json.Unmarshal(raw, &asIntObj); err == nil && asIntObj.Int != "" {
		if d, err := decimal.NewFromString(asIntObj.Int.String()); err == nil {
			return d
		}
		return decimal.Zero
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		return decimal.Zero
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if d, err := decimal.NewFromString(asNumber.String()); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// StringScalar decodes a Pact event parameter expected to carry an
// account name. A JSON string decodes to its value; an empty string is
// permitted (spec §8 fixtures cover both directions of a transfer with an
// empty from/to account); anything else decodes to "".
func StringScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
