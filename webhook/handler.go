// Package webhook receives signed payment gateway callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"pixelmint/service"

	log "github.com/sirupsen/logrus"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Gateway-Signature"

// Handler verifies and applies payment gateway webhooks
type Handler struct {
	payments      service.PaymentService
	secret        string
	requireSigned bool
}

// NewHandler creates a webhook handler. requireSigned must be true in
// production; with it false an empty secret skips verification entirely.
func NewHandler(payments service.PaymentService, secret string, requireSigned bool) *Handler {
	return &Handler{
		payments:      payments,
		secret:        secret,
		requireSigned: requireSigned,
	}
}

// ServeHTTP handles one webhook delivery. The signature is checked against
// the raw body bytes before any JSON parsing. Processing failures are logged
// and still acknowledged with 200 so the gateway does not redeliver forever;
// the payment stays in its last consistent state for reconciliation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Warn("Failed to read webhook body")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.verifySignature(body, r.Header.Get(SignatureHeader)); err != nil {
		log.WithError(err).Warn("Rejected webhook with bad signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event service.GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Malformed payloads will not improve on redelivery; acknowledge
		log.WithError(err).Error("Failed to parse webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.payments.HandleGatewayEvent(r.Context(), &event); err != nil {
		log.WithFields(log.Fields{
			"transactionID": event.TransactionID,
			"status":        event.Status,
		}).WithError(err).Error("Failed to process webhook event")
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) verifySignature(body []byte, signature string) error {
	if h.secret == "" {
		if h.requireSigned {
			return service.ErrInvalidSignature
		}
		// Explicitly unsigned configuration (development, tests)
		return nil
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)

	decoded, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(decoded, mac.Sum(nil)) {
		return service.ErrInvalidSignature
	}

	return nil
}
