package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"pixelmint/models"
	"pixelmint/service"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// userIDHeader identifies the authenticated caller. Authentication itself
// happens upstream; this service trusts the header.
const userIDHeader = "X-User-ID"

// Handler exposes the account, generation, and payment operations over JSON
type Handler struct {
	ledger      service.LedgerService
	rewards     service.RewardService
	generations service.GenerationService
	payments    service.PaymentService

	dailyRewardAmount int64
}

// NewHandler creates an API handler wired to the given services
func NewHandler(ledger service.LedgerService, rewards service.RewardService, generations service.GenerationService, payments service.PaymentService, dailyRewardAmount int64) *Handler {
	return &Handler{
		ledger:            ledger,
		rewards:           rewards,
		generations:       generations,
		payments:          payments,
		dailyRewardAmount: dailyRewardAmount,
	}
}

// Register mounts the API routes on the given router
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/account", h.handleGetOrCreateAccount)
		r.Get("/account/balance", h.handleGetBalance)
		r.Get("/account/history", h.handleGetHistory)
		r.Post("/rewards/daily", h.handleDailyReward)
		r.Route("/generations", func(r chi.Router) {
			r.Post("/", h.handleRequestGeneration)
			r.Get("/{id}", h.handleGetJob)
			r.Post("/{id}/wait", h.handleWaitForResult)
			r.Post("/{id}/publish", h.handlePublishJob)
		})
		r.Post("/payments", h.handleCreatePayment)
	})
}

func (h *Handler) handleGetOrCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	account, err := h.ledger.GetOrCreateAccount(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  account.UserID,
		"balance": account.Balance,
	})
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.GetHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, map[string]any{
			"kind":         entry.Kind,
			"amount":       entry.Amount,
			"reason":       entry.Reason,
			"balanceAfter": entry.BalanceAfter,
			"createdAt":    entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleDailyReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	granted, err := h.rewards.GrantDailyReward(r.Context(), userID, h.dailyRewardAmount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"granted": granted})
}

type generationRequestBody struct {
	Kind          string         `json:"kind"`
	Prompt        string         `json:"prompt"`
	Params        map[string]any `json:"params"`
	PublishIntent bool           `json:"publishIntent"`
}

func (h *Handler) handleRequestGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var body generationRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	kind := models.GenerationKind(body.Kind)
	if kind != models.GenerationKindImage && kind != models.GenerationKindVideo {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown generation kind"})
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "prompt is required"})
		return
	}

	job, err := h.generations.RequestGeneration(r.Context(), userID, &service.GenerationRequest{
		Kind:          kind,
		Prompt:        body.Prompt,
		Params:        body.Params,
		PublishIntent: body.PublishIntent,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobPayload(job))
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	job, err := h.generations.GetJob(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jobPayload(job))
}

func (h *Handler) handleWaitForResult(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	jobID := chi.URLParam(r, "id")
	if _, err := h.generations.GetJob(r.Context(), userID, jobID); err != nil {
		h.writeError(w, r, err)
		return
	}

	job, err := h.generations.WaitForResult(r.Context(), jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jobPayload(job))
}

func (h *Handler) handlePublishJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.generations.PublishJob(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"published": true})
}

type createPaymentBody struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var body createPaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	if body.Amount <= 0 || body.Currency == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "amount and currency are required"})
		return
	}

	payment, err := h.payments.CreatePayment(r.Context(), userID, body.Amount, strings.ToUpper(body.Currency))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"externalId": payment.ExternalID,
		"status":     payment.Status,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
	})
}

// writeError maps service errors to HTTP responses
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound), errors.Is(err, service.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientFunds):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": err.Error()})
	case errors.Is(err, service.ErrConcurrentGenerationLimit):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyPublished), errors.Is(err, service.ErrJobNotCompleted):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, service.ErrProviderSubmitFailed), errors.Is(err, service.ErrPollTimeout):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
	default:
		log.WithFields(log.Fields{
			"path":  r.URL.Path,
			"error": err,
		}).Error("API request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func jobPayload(job *models.GenerationJob) map[string]any {
	payload := map[string]any{
		"id":        job.ID,
		"kind":      job.Kind,
		"status":    job.Status,
		"cost":      job.Cost,
		"published": job.Published,
		"createdAt": job.CreatedAt,
	}
	if job.ResultURI != nil {
		payload["resultUri"] = *job.ResultURI
	}
	if job.ErrorMessage != nil {
		payload["error"] = *job.ErrorMessage
	}
	return payload
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing user id"})
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid user id"})
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("Failed to encode API response")
	}
}
