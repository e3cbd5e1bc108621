package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stakewell/engine/internal/services/ledger"
	"github.com/stakewell/engine/internal/storage/memory"
)

func sign(t *testing.T, secret string, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestIngestor_CheckoutCompleted(t *testing.T) {
	store := memory.New()
	ledgerSvc := ledger.New(store, nil)
	ingestor := NewIngestor(ledgerSvc, NewHMACVerifier("whsec"), nil)

	payload, err := json.Marshal(Event{
		ID:   "evt_100",
		Type: EventCheckoutCompleted,
		Metadata: EventMetadata{
			UserID: "ivy",
			Amount: 2500,
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	entry, applied, err := ingestor.Ingest(context.Background(), payload, sign(t, "whsec", payload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !applied {
		t.Fatalf("first delivery should apply")
	}
	if entry.Amount != 2500 || entry.ExternalRef != "evt_100" {
		t.Fatalf("unexpected entry: amount=%d ref=%s", entry.Amount, entry.ExternalRef)
	}

	// Redelivery is a no-op returning the original entry.
	dup, applied, err := ingestor.Ingest(context.Background(), payload, sign(t, "whsec", payload))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if applied {
		t.Fatalf("redelivery must not apply")
	}
	if dup.ID != entry.ID {
		t.Fatalf("redelivery returned a different entry")
	}

	w, err := store.GetWalletByUser(context.Background(), "ivy")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 2500 {
		t.Fatalf("balance credited more than once: %d", w.Balance)
	}
}

func TestIngestor_RejectsBadSignature(t *testing.T) {
	store := memory.New()
	ledgerSvc := ledger.New(store, nil)
	ingestor := NewIngestor(ledgerSvc, NewHMACVerifier("whsec"), nil)

	payload := []byte(`{"eventId":"evt_1","type":"checkout.session.completed","metadata":{"userId":"judy","amount":100}}`)

	if _, _, err := ingestor.Ingest(context.Background(), payload, "deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if _, _, err := ingestor.Ingest(context.Background(), payload, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("missing signature should be rejected, got %v", err)
	}

	if _, err := store.GetWalletByUser(context.Background(), "judy"); err == nil {
		t.Fatalf("rejected event must not create a wallet")
	}
}

func TestIngestor_IgnoresOtherEventTypes(t *testing.T) {
	store := memory.New()
	ledgerSvc := ledger.New(store, nil)
	ingestor := NewIngestor(ledgerSvc, nil, nil)

	_, applied, err := ingestor.IngestEvent(context.Background(), Event{
		ID:   "evt_2",
		Type: "checkout.session.expired",
		Metadata: EventMetadata{
			UserID: "kate",
			Amount: 300,
		},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if applied {
		t.Fatalf("non-completion events must not move money")
	}
}

func TestSimulatedGateway_Roundtrip(t *testing.T) {
	store := memory.New()
	ledgerSvc := ledger.New(store, nil)
	ingestor := NewIngestor(ledgerSvc, nil, nil)
	gateway := NewSimulatedGateway(nil)

	session, err := gateway.CreateCheckout(context.Background(), "liam", 4000)
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}

	entry, applied, err := ingestor.IngestEvent(context.Background(), gateway.CompletionEvent(session, "liam"))
	if err != nil {
		t.Fatalf("ingest completion: %v", err)
	}
	if !applied || entry.Amount != 4000 {
		t.Fatalf("simulated completion not credited: applied=%t amount=%d", applied, entry.Amount)
	}
}
