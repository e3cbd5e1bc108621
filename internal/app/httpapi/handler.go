// Package httpapi exposes the application over REST. Handlers are thin:
// decode, call the service, map the error, encode.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/stakewell/engine/internal/app"
	"github.com/stakewell/engine/internal/app/metrics"
	"github.com/stakewell/engine/internal/domain/contract"
	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/services/payments"
	"github.com/stakewell/engine/pkg/logger"
)

// Config carries the HTTP-surface tunables.
type Config struct {
	// APIToken guards the API when non-empty. The webhook, health and
	// metrics endpoints are always open.
	APIToken   string
	CORSOrigin string

	WebhookRate  float64
	WebhookBurst int

	// AuditLogPath, when set, appends a JSONL record of every mutating
	// request. The in-memory tail is always kept regardless.
	AuditLogPath string
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	log   *logger.Logger
	audit *auditLog
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application, cfg Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(cfg.AuditLogPath)
	if err != nil {
		log.WithError(err).Error("audit sink unavailable")
		sink = nil
	}
	h := &handler{app: application, log: log, audit: newAuditLog(0, sink)}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/webhooks/payment", h.paymentWebhook).Methods(http.MethodPost)

	r.HandleFunc("/wallets/{userID}", h.walletSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/wallets/{userID}/topup", h.topUp).Methods(http.MethodPost)
	r.HandleFunc("/wallets/{userID}/redeem", h.redeem).Methods(http.MethodPost)
	r.HandleFunc("/wallets/{userID}/checkout", h.checkout).Methods(http.MethodPost)

	r.HandleFunc("/contracts", h.createContract).Methods(http.MethodPost)
	r.HandleFunc("/contracts", h.listContracts).Methods(http.MethodGet)
	r.HandleFunc("/contracts/{id}", h.getContract).Methods(http.MethodGet)
	r.HandleFunc("/contracts/{id}/settle", h.settleContract).Methods(http.MethodPost)
	r.HandleFunc("/contracts/{id}/submissions", h.createSubmission).Methods(http.MethodPost)
	r.HandleFunc("/contracts/{id}/submissions", h.listSubmissions).Methods(http.MethodGet)
	r.HandleFunc("/submissions/{id}/review", h.reviewSubmission).Methods(http.MethodPost)

	r.HandleFunc("/gamify/{userID}", h.gamifyProfile).Methods(http.MethodGet)
	r.HandleFunc("/platform", h.platformSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/audit", h.auditTrail).Methods(http.MethodGet)

	var wrapped http.Handler = r
	wrapped = auditMiddleware(wrapped, h.audit)
	wrapped = authMiddleware(cfg.APIToken)(wrapped)
	wrapped = rateLimitWebhook(wrapped, cfg.WebhookRate, cfg.WebhookBurst)
	wrapped = corsMiddleware(wrapped, cfg.CORSOrigin)
	wrapped = metrics.InstrumentHandler(wrapped)
	return wrapped
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- wallets ---

func (h *handler) walletSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.Ledger.Snapshot(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) topUp(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
		ExternalRef string `json:"external_ref"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, applied, err := h.app.Ledger.TopUp(r.Context(), mux.Vars(r)["userID"], payload.Amount, payload.Description, payload.ExternalRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if !applied {
		status = http.StatusOK
	}
	writeJSON(w, status, entry)
}

func (h *handler) redeem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64  `json:"amount"`
		Points int64  `json:"points"`
		Reward string `json:"reward"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.app.Ledger.Redeem(r.Context(), mux.Vars(r)["userID"], payload.Amount, payload.Points, payload.Reward)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.app.Gateway.CreateCheckout(r.Context(), mux.Vars(r)["userID"], payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// --- contracts ---

func (h *handler) createContract(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID       string `json:"user_id"`
		Goal         string `json:"goal"`
		DurationDays int    `json:"duration_days"`
		Stakes       int64  `json:"stakes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.app.Staking.CreateContract(r.Context(), payload.UserID, payload.Goal, payload.DurationDays, payload.Stakes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) listContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.app.Staking.ListContracts(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, contracts)
}

func (h *handler) getContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Staking.GetContract(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) settleContract(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Outcome string `json:"outcome"`
	}
	// An empty body requests an evaluated settlement.
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		c         contract.Contract
		unchanged bool
		err       error
	)
	switch payload.Outcome {
	case "":
		// No declared outcome: the engine decides from the submission record
		// and the deadline, so a caller cannot force a bonus-minting success.
		var changed bool
		c, changed, err = h.app.Staking.EvaluateContract(r.Context(), mux.Vars(r)["id"], time.Now().UTC())
		unchanged = !changed
	case "success":
		c, unchanged, err = h.app.Staking.SettleSuccess(r.Context(), mux.Vars(r)["id"])
	case "failed":
		c, unchanged, err = h.app.Staking.SettleFailure(r.Context(), mux.Vars(r)["id"])
	default:
		writeError(w, http.StatusBadRequest, errors.New("outcome must be success, failed, or omitted for evaluation"))
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Contract  contract.Contract `json:"contract"`
		Unchanged bool              `json:"unchanged"`
	}{c, unchanged})
}

func (h *handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sub, err := h.app.Staking.RecordSubmission(r.Context(), mux.Vars(r)["id"], payload.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.app.Staking.ListSubmissions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *handler) reviewSubmission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Approve bool `json:"approve"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sub, err := h.app.Staking.ReviewSubmission(r.Context(), mux.Vars(r)["id"], payload.Approve)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// --- payments ---

func (h *handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, applied, err := h.app.Payments.Ingest(r.Context(), payload, r.Header.Get("X-Webhook-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Duplicates acknowledge 200 so the processor stops retrying.
	writeJSON(w, http.StatusOK, struct {
		Entry   wallet.Entry `json:"entry"`
		Applied bool         `json:"applied"`
	}{entry, applied})
}

// --- gamification / platform ---

func (h *handler) gamifyProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.app.Gamify.Profile(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) platformSnapshot(w http.ResponseWriter, r *http.Request) {
	pw, err := h.app.Platform.EnsurePlatformWallet(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	recent, err := h.app.Platform.ListPlatformEntries(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Wallet wallet.PlatformWallet `json:"wallet"`
		Recent []wallet.Entry        `json:"recent"`
	}{pw, recent})
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// --- helpers ---

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, contract.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, wallet.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, contract.ErrAlreadySettled):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
