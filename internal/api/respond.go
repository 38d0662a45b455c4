package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"wishbucket/internal/hints"
	"wishbucket/internal/identity"
	"wishbucket/internal/market"
	"wishbucket/internal/notify"
	"wishbucket/internal/payment"
	"wishbucket/internal/profile"
	"wishbucket/internal/referral"
	"wishbucket/internal/santa"
	"wishbucket/internal/scraper"
	"wishbucket/internal/social"
	"wishbucket/internal/wishlist"
)

var errBadRequest = errors.New("invalid request")

var errorStatuses = []struct {
	err    error
	status int
}{
	{identity.ErrNotAuthenticated, http.StatusUnauthorized},
	{identity.ErrInvalidInitData, http.StatusUnauthorized},
	{identity.ErrInitDataExpired, http.StatusUnauthorized},
	{identity.ErrInvalidToken, http.StatusUnauthorized},
	{identity.ErrExpiredToken, http.StatusUnauthorized},

	{referral.ErrInvalidCode, http.StatusNotFound},
	{referral.ErrUnknownUser, http.StatusNotFound},
	{referral.ErrSelfReferral, http.StatusConflict},
	{referral.ErrAlreadyRedeemed, http.StatusConflict},

	{profile.ErrNotFound, http.StatusNotFound},
	{social.ErrUserNotFound, http.StatusNotFound},
	{wishlist.ErrNotFound, http.StatusNotFound},
	{santa.ErrNotFound, http.StatusNotFound},
	{hints.ErrNotFound, http.StatusNotFound},
	{notify.ErrNotFound, http.StatusNotFound},
	{market.ErrUnknownItem, http.StatusNotFound},
	{market.ErrUnknownUser, http.StatusNotFound},
	{payment.ErrUnknownUser, http.StatusNotFound},

	{wishlist.ErrForbidden, http.StatusForbidden},
	{santa.ErrForbidden, http.StatusForbidden},

	{wishlist.ErrInvalidTransition, http.StatusConflict},
	{wishlist.ErrCrowdfundingTaken, http.StatusConflict},
	{wishlist.ErrCrowdfundingShut, http.StatusConflict},
	{market.ErrInsufficientPoints, http.StatusConflict},
	{market.ErrLocked, http.StatusConflict},
	{market.ErrOutOfStock, http.StatusConflict},
	{market.ErrAlreadyOwned, http.StatusConflict},
	{santa.ErrAlreadyJoined, http.StatusConflict},
	{santa.ErrAlreadyDrawn, http.StatusConflict},
	{santa.ErrNotDrawn, http.StatusConflict},
	{santa.ErrNotEnoughParticipants, http.StatusConflict},
	{santa.ErrInactive, http.StatusConflict},
	{social.ErrAlreadyFollowing, http.StatusConflict},

	{errBadRequest, http.StatusBadRequest},
	{wishlist.ErrInvalidInput, http.StatusBadRequest},
	{wishlist.ErrOwnItem, http.StatusBadRequest},
	{santa.ErrInvalidInput, http.StatusBadRequest},
	{hints.ErrInvalidInput, http.StatusBadRequest},
	{notify.ErrInvalidInput, http.StatusBadRequest},
	{profile.ErrInvalidBirthday, http.StatusBadRequest},
	{social.ErrSelfFollow, http.StatusBadRequest},
	{scraper.ErrInvalidURL, http.StatusBadRequest},

	{payment.ErrNotConfigured, http.StatusServiceUnavailable},
	{hints.ErrNoResender, http.StatusServiceUnavailable},
}

// statusFor maps a service error to its HTTP status. Anything unknown,
// persistence failures included, is a 500.
func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Failed to encode response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithErr writes err with its mapped status. Server errors are logged
// and replaced by a generic message.
func respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		respondWithError(w, code, "Internal server error")
		return
	}
	respondWithError(w, code, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s", errBadRequest, name)
	}
	return id, nil
}

func pathString(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
