package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stakewell/engine/pkg/logger"
)

// CheckoutSession is a pending payment the user completes on the processor's
// side; completion arrives later as a webhook event.
type CheckoutSession struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Amount int64  `json:"amount"`
}

// Gateway starts checkout sessions with the payment processor. The variant
// is chosen once at startup and injected; nothing downstream branches on it.
type Gateway interface {
	CreateCheckout(ctx context.Context, userID string, amount int64) (CheckoutSession, error)
}

// SimulatedGateway fabricates sessions locally for development and tests.
type SimulatedGateway struct {
	log *logger.Logger
}

func NewSimulatedGateway(log *logger.Logger) *SimulatedGateway {
	if log == nil {
		log = logger.NewDefault("payments-simulated")
	}
	return &SimulatedGateway{log: log}
}

func (g *SimulatedGateway) CreateCheckout(_ context.Context, userID string, amount int64) (CheckoutSession, error) {
	if amount <= 0 {
		return CheckoutSession{}, fmt.Errorf("amount must be positive")
	}
	session := CheckoutSession{
		ID:     "sim_" + uuid.NewString(),
		URL:    "https://checkout.invalid/session/sim",
		Amount: amount,
	}
	g.log.WithField("user_id", userID).
		WithField("session_id", session.ID).
		Info("simulated checkout created")
	return session, nil
}

// CompletionEvent builds the webhook event the processor would deliver once
// the simulated session is paid. Useful for end-to-end exercises.
func (g *SimulatedGateway) CompletionEvent(session CheckoutSession, userID string) Event {
	return Event{
		ID:   "evt_" + session.ID,
		Type: EventCheckoutCompleted,
		Metadata: EventMetadata{
			UserID: userID,
			Amount: session.Amount,
		},
	}
}

// RealGateway calls the processor's session API over HTTP.
type RealGateway struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

func NewRealGateway(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*RealGateway, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("gateway endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse gateway endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("payments-gateway")
	}
	return &RealGateway{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		log:      log,
	}, nil
}

func (g *RealGateway) CreateCheckout(ctx context.Context, userID string, amount int64) (CheckoutSession, error) {
	if amount <= 0 {
		return CheckoutSession{}, fmt.Errorf("amount must be positive")
	}

	body, err := json.Marshal(map[string]any{
		"amount":   amount,
		"metadata": map[string]string{"userId": userID},
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("encode checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint.String(), strings.NewReader(string(body)))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return CheckoutSession{}, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout response: %w", err)
	}
	return session, nil
}

// HMACVerifier checks the hex-encoded HMAC-SHA256 signature the processor
// attaches to each delivery.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("missing signature")
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
