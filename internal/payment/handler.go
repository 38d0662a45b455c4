package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"wishbucket/internal/utils"
)

// Handler receives YooKassa webhooks.
type Handler struct {
	Service    *Service
	AllowedIPs []string
	TrustProxy bool
}

func NewHandler(svc *Service, allowedIPs []string, trustProxy bool) *Handler {
	return &Handler{Service: svc, AllowedIPs: allowedIPs, TrustProxy: trustProxy}
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := utils.ClientIP(r, h.TrustProxy)
	if !utils.IsAllowedIP(ip, h.AllowedIPs) {
		log.WithField("ip", ip).Warn("Rejected webhook from unknown address")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var notification WebhookNotification
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&notification); err != nil {
		log.WithError(err).Warn("Failed to decode webhook")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var err error
	switch notification.Event {
	case EventSucceeded:
		err = h.Service.ApplySucceeded(r.Context(), notification.Object)
	case EventCanceled:
		err = h.Service.ApplyCanceled(r.Context(), notification.Object)
	default:
		log.WithField("event", notification.Event).Debug("Ignored webhook event")
	}

	switch {
	case errors.Is(err, ErrBadMetadata):
		// Retrying will not fix it.
		log.WithError(err).WithField("payment_id", notification.Object.ID).Error("Unusable payment notification")
	case err != nil:
		log.WithError(err).WithField("payment_id", notification.Object.ID).Error("Failed to process payment notification")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
