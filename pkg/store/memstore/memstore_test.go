package memstore

import (
	"context"
	"errors"
	"testing"

	"chainweb-indexer/pkg/errs"
	"chainweb-indexer/pkg/models"
)

func TestInsertBatchIgnoresConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()
	blk := models.Block{ChainID: 0, Hash: "h1", Height: 10}

	if err := s.Blocks().InsertBatch(ctx, []models.Block{blk}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other := blk
	other.Height = 999
	if err := s.Blocks().InsertBatch(ctx, []models.Block{other}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Blocks().FindByHash(ctx, 0, "h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Height != 10 {
		t.Fatalf("want original row preserved on conflict, got %+v", got)
	}
}

func TestTxInsertSurfacesConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	blk := models.Block{ChainID: 0, Hash: "orphan", Height: 5}
	if err := s.Blocks().InsertBatch(ctx, []models.Block{blk}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = txn.Blocks().Insert(ctx, models.Block{ChainID: 0, Hash: "orphan", Height: 5})
	if !errors.Is(err, errs.ConflictKind) {
		t.Fatalf("want conflict error, got %v", err)
	}
	_ = txn.Rollback(ctx)
}

func TestTxCommitIsAtomicAndVisibleOnlyAfterCommit(t *testing.T) {
	s := New()
	ctx := context.Background()

	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := txn.Blocks().Insert(ctx, models.Block{ChainID: 0, Hash: "new", Height: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, _ := s.Blocks().FindByHash(ctx, 0, "new"); got != nil {
		t.Fatalf("want uncommitted insert invisible, got %+v", got)
	}

	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := s.Blocks().FindByHash(ctx, 0, "new"); got == nil {
		t.Fatalf("want committed insert visible")
	}
}

func TestReorgRepairDeletesOrphanChildrenThenReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()

	orphan := models.Block{ChainID: 0, Hash: "orphan", Height: 5}
	if err := s.Blocks().InsertBatch(ctx, []models.Block{orphan}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	txn, _ := s.Begin(ctx)
	txn.Transactions().InsertBatch(ctx, []models.Transaction{{Block: "orphan", RequestKey: "rk1"}})
	txn.Events().InsertBatch(ctx, []models.Event{{Block: "orphan", Idx: 0, RequestKey: "rk1"}})
	txn.Transfers().InsertBatch(ctx, []models.Transfer{{Block: "orphan", ChainID: 0, Idx: 0, RequestKey: "rk1"}})
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repair, _ := s.Begin(ctx)
	repair.Transfers().DeleteByBlockHashAndChain(ctx, "orphan", 0)
	repair.Events().DeleteByBlockHash(ctx, "orphan")
	repair.Transactions().DeleteByBlockHash(ctx, "orphan")
	repair.Blocks().DeleteByHash(ctx, 0, "orphan")
	replacement := models.Block{ChainID: 0, Hash: "new_hash", Height: 5}
	if err := repair.Blocks().Insert(ctx, replacement); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repair.Commit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, _ := s.Blocks().FindByHash(ctx, 0, "orphan"); got != nil {
		t.Fatalf("want orphan gone, got %+v", got)
	}
	if got, _ := s.Blocks().FindByHash(ctx, 0, "new_hash"); got == nil {
		t.Fatalf("want replacement block present")
	}

	txs, _ := s.Transactions().FindByRequestKey(ctx, []string{"rk1"})
	if len(txs) != 0 {
		t.Fatalf("want orphan's transaction gone, got %v", txs)
	}
}
