package transfers

import (
	"encoding/json"
	"testing"
	"time"

	"chainweb-indexer/pkg/models"
)

func TestIsTransfer(t *testing.T) {
	tests := []struct {
		name   string
		module string
		event  string
		want   bool
	}{
		{"coin transfer", "coin", "TRANSFER", true},
		{"coin other event", "coin", "TRANSFER_XCHAIN", false},
		{"other module", "marmalade", "TRANSFER", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IsTransfer(models.Event{Module: tc.module, Name: tc.event})
			if got != tc.want {
				t.Fatalf("IsTransfer(%s.%s) = %v, want %v", tc.module, tc.event, got, tc.want)
			}
		})
	}
}

func TestMakeTransferTruncatesToMillisecond(t *testing.T) {
	blk := models.Block{CreationTime: time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)}
	ev := models.Event{
		Block:   "h1",
		ChainID: 0,
		Height:  10,
		Idx:     0,
		Module:  "coin",
		Name:    "TRANSFER",
		Params:  json.RawMessage(`["alice","bob",{"decimal":"1.5"}]`),
	}

	got, err := MakeTransfer(ev, blk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FromAccount != "alice" || got.ToAccount != "bob" {
		t.Fatalf("unexpected accounts: %+v", got)
	}
	if got.Amount.String() != "1.5" {
		t.Fatalf("unexpected amount: %s", got.Amount.String())
	}
	if got.CreationTime.Nanosecond() != 123000000 {
		t.Fatalf("want truncation to millisecond, got %v", got.CreationTime)
	}
}

func TestMakeTransferPermitsEmptyAccounts(t *testing.T) {
	blk := models.Block{CreationTime: time.Now()}
	ev := models.Event{
		Params: json.RawMessage(`["","",{"int":0}]`),
	}
	got, err := MakeTransfer(ev, blk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FromAccount != "" || got.ToAccount != "" {
		t.Fatalf("want empty accounts permitted, got %+v", got)
	}
}

func TestMakeTransferMalformedAmountDecodesToZero(t *testing.T) {
	blk := models.Block{CreationTime: time.Now()}
	ev := models.Event{Params: json.RawMessage(`["alice","bob","wrong-amount"]`)}
	got, err := MakeTransfer(ev, blk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Amount.IsZero() {
		t.Fatalf("want zero amount for malformed scalar, got %s", got.Amount.String())
	}
}
