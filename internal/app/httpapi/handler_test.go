package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/stakewell/engine/internal/app"
)

const (
	testAuthToken     = "test-token"
	testWebhookSecret = "whsec-test"
)

func newTestHandler(t *testing.T) (http.Handler, *app.Application) {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{
		SettlementInterval: time.Minute,
		GatewayMode:        "simulated",
		WebhookSecret:      testWebhookSecret,
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler := NewHandler(application, Config{APIToken: testAuthToken}, nil)
	return handler, application
}

func TestHandlerLifecycle(t *testing.T) {
	handler, application := newTestHandler(t)

	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	defer application.Stop(context.Background())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/wallets/alice/topup",
		marshal(map[string]any{"amount": 1000, "description": "seed", "external_ref": "evt_seed"})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 top-up, got %d: %s", resp.Code, resp.Body.String())
	}

	// Replaying the same external_ref acknowledges without crediting again.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/wallets/alice/topup",
		marshal(map[string]any{"amount": 1000, "description": "seed", "external_ref": "evt_seed"})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 duplicate top-up, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/wallets/alice", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 snapshot, got %d", resp.Code)
	}
	var snap struct {
		Wallet struct {
			ID      string
			Balance int64
		}
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Wallet.Balance != 1000 {
		t.Fatalf("expected balance 1000, got %d", snap.Wallet.Balance)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts",
		marshal(map[string]any{"user_id": "alice", "goal": "run daily", "duration_days": 7, "stakes": 500})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create contract, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct{ ID string }
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal contract: %v", err)
	}

	// Stake over the remaining balance is rejected.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts",
		marshal(map[string]any{"user_id": "alice", "goal": "too rich", "duration_days": 7, "stakes": 900})))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 insufficient stake, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/contracts?user_id=alice", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 list contracts, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts/"+created.ID+"/submissions",
		marshal(map[string]any{"note": "day one"})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 submission, got %d", resp.Code)
	}
	var sub struct{ ID string }
	if err := json.Unmarshal(resp.Body.Bytes(), &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/submissions/"+sub.ID+"/review",
		marshal(map[string]any{"approve": true})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 review, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts/"+created.ID+"/settle",
		marshal(map[string]any{"outcome": "success"})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 settle, got %d: %s", resp.Code, resp.Body.String())
	}

	// Second settle is a no-op, not a double payout.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts/"+created.ID+"/settle",
		marshal(map[string]any{"outcome": "failed"})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 repeat settle, got %d", resp.Code)
	}
	var settleResp struct {
		Contract  struct{ Status string }
		Unchanged bool
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &settleResp); err != nil {
		t.Fatalf("unmarshal settle response: %v", err)
	}
	if !settleResp.Unchanged || settleResp.Contract.Status != "success" {
		t.Fatalf("repeat settle should be unchanged success, got %+v", settleResp)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/wallets/alice", nil))
	var after struct {
		Wallet struct {
			Balance       int64
			LockedBalance int64
			Points        int64
		}
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &after); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if after.Wallet.Balance != 1000 || after.Wallet.LockedBalance != 0 {
		t.Fatalf("stake not released: %+v", after.Wallet)
	}
	if after.Wallet.Points != 75 {
		t.Fatalf("expected 75 bonus points, got %d", after.Wallet.Points)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/wallets/alice/redeem",
		marshal(map[string]any{"amount": 100, "points": 10, "reward": "sticker"})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 redeem, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/gamify/alice", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 gamify, got %d", resp.Code)
	}
	var profile struct {
		Rank   string
		Badges []struct{ BadgeKey string }
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &profile); err != nil {
		t.Fatalf("unmarshal profile: %v", err)
	}
	if profile.Rank != "bronze" {
		t.Fatalf("expected bronze rank, got %s", profile.Rank)
	}
	if len(profile.Badges) == 0 {
		t.Fatalf("expected earned badges after a successful contract")
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/wallets/alice/checkout",
		marshal(map[string]any{"amount": 2000})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 checkout, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/platform", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 platform, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || resp.Body.Len() == 0 {
		t.Fatalf("expected non-empty 200 metrics, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.Code)
	}
}

func TestHandlerEvaluatedSettle(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/wallets/gina/topup",
		marshal(map[string]any{"amount": 1000, "description": "seed", "external_ref": "evt_gina"})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("topup failed: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts",
		marshal(map[string]any{"user_id": "gina", "goal": "walk daily", "duration_days": 1, "stakes": 100})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create contract failed: %d %s", resp.Code, resp.Body.String())
	}
	var created struct{ ID string }
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal contract: %v", err)
	}

	// Settle with no declared outcome: the engine evaluates, and an
	// undeserved contract does not transition.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts/"+created.ID+"/settle", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 evaluated settle, got %d: %s", resp.Code, resp.Body.String())
	}
	var settleResp struct {
		Contract  struct{ Status string }
		Unchanged bool
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &settleResp); err != nil {
		t.Fatalf("unmarshal settle response: %v", err)
	}
	if !settleResp.Unchanged || settleResp.Contract.Status != "active" {
		t.Fatalf("premature settlement: %+v", settleResp)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts/"+created.ID+"/submissions",
		marshal(map[string]any{"note": "lap done"})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("submission failed: %d", resp.Code)
	}
	var sub struct{ ID string }
	if err := json.Unmarshal(resp.Body.Bytes(), &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/submissions/"+sub.ID+"/review",
		marshal(map[string]any{"approve": true})))
	if resp.Code != http.StatusOK {
		t.Fatalf("review failed: %d", resp.Code)
	}

	// Once the goal is met, the evaluated settle releases the stake.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/contracts/"+created.ID+"/settle",
		marshal(map[string]any{})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 evaluated settle, got %d: %s", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &settleResp); err != nil {
		t.Fatalf("unmarshal settle response: %v", err)
	}
	if settleResp.Unchanged || settleResp.Contract.Status != "success" {
		t.Fatalf("completed contract should settle: %+v", settleResp)
	}
}

func TestHandlerWebhook(t *testing.T) {
	handler, _ := newTestHandler(t)

	payload := marshal(map[string]any{
		"eventId": "evt_wh_1",
		"type":    "checkout.session.completed",
		"metadata": map[string]any{
			"userId": "bob",
			"amount": 3000,
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", signPayload(testWebhookSecret, payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 webhook, got %d: %s", resp.Code, resp.Body.String())
	}
	var result struct{ Applied bool }
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal webhook response: %v", err)
	}
	if !result.Applied {
		t.Fatalf("first delivery should apply")
	}

	// Redelivery acknowledges but does not credit again.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", signPayload(testWebhookSecret, payload))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 redelivery, got %d", resp.Code)
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal webhook response: %v", err)
	}
	if result.Applied {
		t.Fatalf("redelivery must not apply")
	}

	// Tampered signature is rejected.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 bad signature, got %d", resp.Code)
	}
}

func TestHandlerAuthRequired(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/wallets/alice", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", resp.Code)
	}
}

func TestHandlerAuditTrail(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/wallets/frank/topup", marshal(map[string]any{
		"amount":       700,
		"description":  "audit seed",
		"external_ref": "evt_audit_1",
	})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("topup failed: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/audit?limit=10", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("audit trail failed: %d %s", resp.Code, resp.Body.String())
	}
	var trail []struct {
		Path   string `json:"path"`
		Method string `json:"method"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &trail); err != nil {
		t.Fatalf("decode audit trail: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(trail))
	}
	if trail[0].Path != "/wallets/frank/topup" || trail[0].Method != http.MethodPost || trail[0].Status != http.StatusCreated {
		t.Fatalf("unexpected audit entry: %+v", trail[0])
	}
}

func authedRequest(method, url string, body []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	return req
}

func marshal(v any) []byte {
	buf, _ := json.Marshal(v)
	return buf
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
