package indexer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chainweb-indexer/pkg/chainwebclient"
	"chainweb-indexer/pkg/chainwebclient/chainwebtest"
	"chainweb-indexer/pkg/models"
	"chainweb-indexer/pkg/store/memstore"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func b64(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// newFixtureID returns a synthetic, collision-free hash/request-key for
// test fixtures, standing in for the node-assigned content hashes and
// request keys a real response would carry.
func newFixtureID() string {
	return uuid.NewString()
}

func makeSignedTx(t *testing.T, requestKey, chainID string) string {
	t.Helper()
	cmd := map[string]interface{}{
		"networkId": "mainnet01",
		"payload": map[string]interface{}{
			"exec": map[string]interface{}{"code": "(coin.transfer \"alice\" \"bob\" 1.5)", "data": nil},
		},
		"signers": []interface{}{},
		"meta": map[string]interface{}{
			"creationTime": 1700000000,
			"ttl":          600,
			"gasLimit":     1000,
			"chainId":      chainID,
			"gasPrice":     0.0000001,
			"sender":       "alice",
		},
		"nonce": "n1",
	}
	cmdJSON, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal cmd: %v", err)
	}
	signedTx := map[string]interface{}{
		"cmd":  string(cmdJSON),
		"hash": requestKey,
		"sigs": []interface{}{},
	}
	return b64(t, signedTx)
}

func TestProcessHeadersBuildsTransfersAndNonTransferEvents(t *testing.T) {
	ctx := context.Background()
	client := chainwebtest.New()
	st := memstore.New()
	ix := New(client, st, DefaultConfig(), testLogger())

	const chain = chainwebclient.ChainID(0)
	minerData := b64(t, map[string]interface{}{"account": "miner-1", "predicate": "keys-all"})
	payloadHash := newFixtureID()
	requestKey := newFixtureID()
	blockHash := newFixtureID()
	txB64 := makeSignedTx(t, requestKey, "0")

	client.SetPayload(payloadHash, chainwebclient.BlockPayload{
		MinerData:    minerData,
		PayloadHash:  payloadHash,
		Transactions: []string{txB64},
	})

	events := []chainwebclient.WireEvent{
		{Module: chainwebclient.EventModule{Name: "coin"}, Name: "TRANSFER", Params: json.RawMessage(`["alice","bob",{"decimal":"1.5"}]`)},
		{Module: chainwebclient.EventModule{Name: "coin"}, Name: "TRANSFER", Params: json.RawMessage(`["bob","carol",{"int":2}]`)},
		{Module: chainwebclient.EventModule{Name: "coin"}, Name: "TRANSFER_XCHAIN_RECD", Params: json.RawMessage(`["alice","carol",{"int":1}]`)},
	}
	client.SetResult(requestKey, chainwebclient.PactTransactionResult{
		RequestKey: requestKey,
		Result:     chainwebclient.ResultBody{Data: json.RawMessage(`"Write succeeded"`)},
		Gas:        10,
		Events:     &events,
		Metadata:   chainwebclient.ResultMetadata{BlockHash: blockHash, BlockHeight: 1, BlockTime: 1700000001000000},
	})

	header := chainwebclient.BlockHeader{
		ChainID:      chain,
		Hash:         chainwebclient.Hash(blockHash),
		Height:       1,
		Parent:       "genesis",
		PayloadHash:  payloadHash,
		Weight:       "10",
		CreationTime: 1700000000000000,
		EpochStart:   1700000000000000,
		Nonce:        "0",
		Target:       "1",
	}

	if err := ix.ProcessHeaders(ctx, []chainwebclient.BlockHeader{header}, chain, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blk, err := st.Blocks().FindByHash(ctx, 0, blockHash)
	if err != nil || blk == nil {
		t.Fatalf("want block stored, err=%v blk=%v", err, blk)
	}
	if blk.Miner != `"miner-1"` {
		t.Fatalf("want quoted miner json preserved, got %s", blk.Miner)
	}

	txs, err := st.Transactions().FindByRequestKey(ctx, []string{requestKey})
	if err != nil || len(txs) != 1 {
		t.Fatalf("want 1 transaction stored, got %v err=%v", txs, err)
	}
	wantCreationTime := time.UnixMicro(1700000001000000).UTC()
	if !txs[0].CreationTime.Equal(wantCreationTime) {
		t.Fatalf("want transaction creation time from result metadata block time, got %v want %v", txs[0].CreationTime, wantCreationTime)
	}

	xfers, err := st.Transfers().Find(ctx, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(xfers) != 2 {
		t.Fatalf("want 2 transfers (non-transfer event excluded), got %d", len(xfers))
	}
}

func TestIndexChainConvergesToFixedPointWithinTwoCalls(t *testing.T) {
	ctx := context.Background()
	client := chainwebtest.New()
	st := memstore.New()
	ix := New(client, st, DefaultConfig(), testLogger())

	const chain = chainwebclient.ChainID(0)
	payloadHash := newFixtureID()
	client.SetPayload(payloadHash, chainwebclient.BlockPayload{
		MinerData:   b64(t, map[string]interface{}{"account": "m", "predicate": "keys-all"}),
		PayloadHash: payloadHash,
	})
	client.AddHeader(chainwebclient.BlockHeader{ChainID: chain, Hash: chainwebclient.Hash(newFixtureID()), Height: 1, PayloadHash: payloadHash, Weight: "1", Nonce: "0", Target: "1"})

	bounds := chainwebclient.Bounds{Upper: []chainwebclient.Hash{"cut-hash"}}
	if err := ix.indexChain(ctx, bounds, chain, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls := client.BranchCalls(); calls > 2 {
		t.Fatalf("want fixed point within 2 branch calls, got %d", calls)
	}
}

func TestInsertBlockWithReorgRepairReplacesOrphan(t *testing.T) {
	ctx := context.Background()
	client := chainwebtest.New()
	st := memstore.New()
	ix := New(client, st, DefaultConfig(), testLogger())

	orphan := models.Block{ChainID: 0, Hash: "orphan", Height: 5}
	tx1, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ix.insertBlockWithReorgRepair(ctx, tx1, orphan); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if err := tx1.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	replacement := models.Block{ChainID: 0, Hash: "new_hash", Height: 5}
	tx2, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ix.insertBlockWithReorgRepair(ctx, tx2, replacement); err != nil {
		t.Fatalf("unexpected error on reorg insert: %v", err)
	}
	if err := tx2.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if got, _ := st.Blocks().FindByHash(ctx, 0, "orphan"); got != nil {
		t.Fatalf("want orphan gone after reorg, got %+v", got)
	}
	if got, _ := st.Blocks().FindByHash(ctx, 0, "new_hash"); got == nil {
		t.Fatalf("want replacement present")
	}
}

func TestInsertBlockWithReorgRepairIsIdempotentOnRerun(t *testing.T) {
	ctx := context.Background()
	client := chainwebtest.New()
	st := memstore.New()
	ix := New(client, st, DefaultConfig(), testLogger())

	blk := models.Block{ChainID: 0, Hash: "h1", Height: 5}

	for i := 0; i < 2; i++ {
		tx, err := st.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := ix.insertBlockWithReorgRepair(ctx, tx, blk); err != nil {
			t.Fatalf("iteration %d: unexpected error re-inserting identical block: %v", i, err)
		}
		if err := tx.Commit(ctx); err != nil {
			t.Fatalf("iteration %d: commit: %v", i, err)
		}
	}

	got, err := st.Blocks().FindByHash(ctx, 0, "h1")
	if err != nil || got == nil {
		t.Fatalf("want block present after re-run, err=%v blk=%v", err, got)
	}
	if n, _ := st.Blocks().Count(ctx, 0); n != 1 {
		t.Fatalf("want exactly 1 block stored after re-run, got %d", n)
	}
}
