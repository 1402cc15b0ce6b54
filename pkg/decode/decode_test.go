package decode

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAmountScalarDecimalObjectPreservesScale(t *testing.T) {
	raw := json.RawMessage(`{"decimal":"22.230409400000000000000000"}`)
	got := AmountScalar(raw)
	if got.StringFixed(-got.Exponent()) != "22.230409400000000000000000" {
		t.Fatalf("want exact scale preserved, got %s", got.StringFixed(-got.Exponent()))
	}
}

func TestAmountScalarIntObject(t *testing.T) {
	got := AmountScalar(json.RawMessage(`{"int":1}`))
	if !got.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("want 1, got %s", got.String())
	}
}

func TestAmountScalarBareNumber(t *testing.T) {
	got := AmountScalar(json.RawMessage(`5.5`))
	if !got.Equal(decimal.RequireFromString("5.5")) {
		t.Fatalf("want 5.5, got %s", got.String())
	}
}

func TestAmountScalarMalformedStringDecodesToZero(t *testing.T) {
	got := AmountScalar(json.RawMessage(`"wrong-amount"`))
	if !got.IsZero() {
		t.Fatalf("want zero for malformed amount, got %s", got.String())
	}
}

func TestStringScalarAllowsEmpty(t *testing.T) {
	if got := StringScalar(json.RawMessage(`""`)); got != "" {
		t.Fatalf("want empty string, got %q", got)
	}
	if got := StringScalar(json.RawMessage(`"bob"`)); got != "bob" {
		t.Fatalf("want bob, got %q", got)
	}
}

func TestDecodeMinerDataPreservesQuoting(t *testing.T) {
	inner := `{"account":"miner-account","predicate":"keys-all"}`
	encoded := base64.RawURLEncoding.EncodeToString([]byte(inner))

	md, err := DecodeMinerData(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(md.Account) != `"miner-account"` {
		t.Fatalf("want quoted account json, got %s", md.Account)
	}
	if string(md.Predicate) != `"keys-all"` {
		t.Fatalf("want quoted predicate json, got %s", md.Predicate)
	}
}
