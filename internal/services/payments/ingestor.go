// Package payments ingests webhook notifications from the payment processor
// and converts completed checkouts into wallet top-ups exactly once.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stakewell/engine/internal/app/metrics"
	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/services/ledger"
	"github.com/stakewell/engine/pkg/logger"
)

// ErrInvalidSignature rejects a webhook whose signature does not match the
// payload.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// EventCheckoutCompleted is the only processor event that moves money.
const EventCheckoutCompleted = "checkout.session.completed"

// Event is the processor's webhook payload.
type Event struct {
	ID       string        `json:"eventId"`
	Type     string        `json:"type"`
	Metadata EventMetadata `json:"metadata"`
}

// EventMetadata carries the checkout details the processor echoes back.
type EventMetadata struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}

// SignatureVerifier authenticates a raw webhook body against a
// processor-supplied signature.
type SignatureVerifier interface {
	Verify(payload []byte, signature string) error
}

// Ingestor converts payment events into ledger top-ups.
type Ingestor struct {
	ledger   *ledger.Service
	verifier SignatureVerifier
	log      *logger.Logger
}

func NewIngestor(ledgerSvc *ledger.Service, verifier SignatureVerifier, log *logger.Logger) *Ingestor {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Ingestor{
		ledger:   ledgerSvc,
		verifier: verifier,
		log:      log,
	}
}

// Ingest authenticates and applies one webhook delivery. Redelivery of an
// already-applied event returns the original entry with applied=false; the
// caller should treat that as success so the processor stops retrying.
func (i *Ingestor) Ingest(ctx context.Context, payload []byte, signature string) (wallet.Entry, bool, error) {
	if i.verifier != nil {
		if err := i.verifier.Verify(payload, signature); err != nil {
			i.log.WithError(err).Warn("webhook signature rejected")
			return wallet.Entry{}, false, ErrInvalidSignature
		}
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return wallet.Entry{}, false, fmt.Errorf("decode webhook payload: %w", err)
	}
	return i.IngestEvent(ctx, event)
}

// IngestEvent applies an already-authenticated event.
func (i *Ingestor) IngestEvent(ctx context.Context, event Event) (wallet.Entry, bool, error) {
	if strings.TrimSpace(event.ID) == "" {
		return wallet.Entry{}, false, fmt.Errorf("event has no id")
	}
	if event.Type != EventCheckoutCompleted {
		i.log.WithField("event_type", event.Type).Debug("ignoring payment event")
		return wallet.Entry{}, false, nil
	}
	if strings.TrimSpace(event.Metadata.UserID) == "" {
		return wallet.Entry{}, false, fmt.Errorf("event %s has no user id", event.ID)
	}
	if event.Metadata.Amount <= 0 {
		return wallet.Entry{}, false, fmt.Errorf("event %s has non-positive amount %d", event.ID, event.Metadata.Amount)
	}

	entry, applied, err := i.ledger.TopUp(ctx, event.Metadata.UserID, event.Metadata.Amount,
		"checkout "+event.ID, event.ID)
	if err != nil {
		return wallet.Entry{}, false, err
	}
	if !applied {
		metrics.RecordDuplicateWebhook()
		i.log.WithField("event_id", event.ID).Info("duplicate payment event ignored")
	}
	return entry, applied, nil
}
