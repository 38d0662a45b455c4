package api

import (
	"context"
	"net/http"
	"strconv"

	"wishbucket/internal/affiliate"
	"wishbucket/internal/hints"
	"wishbucket/internal/identity"
	"wishbucket/internal/models"
	"wishbucket/internal/santa"
	"wishbucket/internal/scraper"
)

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	Product   *scraper.ProductInfo `json:"product"`
	Affiliate affiliate.Result     `json:"affiliate"`
}

// scrape extracts product metadata and the affiliate form of the link.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.Config.ScrapeTimeout+requestTimeout)
	defer cancel()

	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithErr(w, r, err)
		return
	}
	info, err := s.Scraper.Scrape(ctx, req.URL)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	resp := scrapeResponse{Product: info, Affiliate: affiliate.Result{URL: req.URL}}
	if s.Affiliate != nil {
		resp.Affiliate = s.Affiliate.Process(req.URL)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	q := r.URL.Query()
	unreadOnly, _ := strconv.ParseBool(q.Get("unread"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := s.Notify.List(ctx, userID, unreadOnly, limit)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	count, err := s.Notify.UnreadCount(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	if err := s.Notify.MarkRead(ctx, userID, pathString(r, "id")); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	n, err := s.Notify.MarkAllRead(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) storefront(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	sf, err := s.Market.Storefront(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sf)
}

type marketPurchaseRequest struct {
	ItemID string `json:"itemId"`
}

func (s *Server) marketPurchase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var req marketPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithErr(w, r, err)
		return
	}
	receipt, err := s.Market.Purchase(ctx, userID, req.ItemID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, receipt)
}

func (s *Server) marketHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	purchases, err := s.Market.History(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, purchases)
}

func (s *Server) listSantas(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	list, err := s.Santas.List(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (s *Server) createSanta(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var in santa.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithErr(w, r, err)
		return
	}
	ss, err := s.Santas.Create(ctx, userID, in)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, ss)
}

func (s *Server) getSanta(w http.ResponseWriter, r *http.Request) {
	s.santaAction(w, r, s.Santas.Get)
}

func (s *Server) joinSanta(w http.ResponseWriter, r *http.Request) {
	s.santaAction(w, r, s.Santas.Join)
}

func (s *Server) drawSanta(w http.ResponseWriter, r *http.Request) {
	s.santaAction(w, r, s.Santas.Draw)
}

func (s *Server) santaAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, string) (*models.SecretSanta, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	ss, err := fn(ctx, userID, pathString(r, "id"))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ss)
}

func (s *Server) santaAssignment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	a, err := s.Santas.Assignment(ctx, userID, pathString(r, "id"))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}

func (s *Server) listHints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	list, err := s.Hints.List(ctx, userID, models.HintStatus(r.URL.Query().Get("status")))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (s *Server) hintCounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	counts, err := s.Hints.CountByPerson(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, counts)
}

type hintUpdateRequest struct {
	Status *models.HintStatus `json:"status"`
	Notes  *string            `json:"notes"`
}

func (s *Server) updateHint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)
	id := pathString(r, "id")

	var req hintUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithErr(w, r, err)
		return
	}
	if req.Status == nil && req.Notes == nil {
		respondWithErr(w, r, hints.ErrInvalidInput)
		return
	}

	var (
		h   *models.GiftHint
		err error
	)
	if req.Status != nil {
		h, err = s.Hints.UpdateStatus(ctx, userID, id, *req.Status)
	}
	if err == nil && req.Notes != nil {
		h, err = s.Hints.UpdateNotes(ctx, userID, id, *req.Notes)
	}
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h)
}

func (s *Server) deleteHint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	if err := s.Hints.Delete(ctx, userID, pathString(r, "id")); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) resendHint(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	if err := s.Hints.Resend(ctx, userID, pathString(r, "id")); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) premiumCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	co, err := s.Premium.Checkout(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, co)
}
