package api

import (
	"context"
	"net/http"

	"wishbucket/internal/identity"
	"wishbucket/internal/models"
	"wishbucket/internal/wishlist"
)

func (s *Server) listWishlists(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	lists, err := s.Wishlists.List(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, lists)
}

func (s *Server) createWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var in wishlist.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithErr(w, r, err)
		return
	}
	wl, err := s.Wishlists.Create(ctx, userID, in)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, wl)
}

func (s *Server) getWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	wl, err := s.Wishlists.Get(ctx, userID, pathString(r, "id"))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wl)
}

func (s *Server) updateWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var in wishlist.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithErr(w, r, err)
		return
	}
	wl, err := s.Wishlists.Update(ctx, userID, pathString(r, "id"), in)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wl)
}

func (s *Server) deleteWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	if err := s.Wishlists.Delete(ctx, userID, pathString(r, "id")); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) shareWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	link, err := s.Wishlists.ShareLink(ctx, userID, pathString(r, "id"))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var in wishlist.ItemInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithErr(w, r, err)
		return
	}
	item, err := s.Wishlists.AddItem(ctx, userID, pathString(r, "id"), in)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, item)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var in wishlist.ItemUpdate
	if err := decodeJSON(r, &in); err != nil {
		respondWithErr(w, r, err)
		return
	}
	item, err := s.Wishlists.UpdateItem(ctx, userID, pathString(r, "id"), in)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	if err := s.Wishlists.DeleteItem(ctx, userID, pathString(r, "id")); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) reserveItem(w http.ResponseWriter, r *http.Request) {
	s.itemTransition(w, r, s.Wishlists.Reserve)
}

func (s *Server) unreserveItem(w http.ResponseWriter, r *http.Request) {
	s.itemTransition(w, r, s.Wishlists.Unreserve)
}

func (s *Server) purchaseItem(w http.ResponseWriter, r *http.Request) {
	s.itemTransition(w, r, s.Wishlists.Purchase)
}

func (s *Server) itemTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, string) (*models.WishlistItem, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	item, err := fn(ctx, userID, pathString(r, "id"))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

type crowdfundingRequest struct {
	TargetAmount float64 `json:"targetAmount"`
	Amount       float64 `json:"amount"`
}

func (s *Server) startCrowdfunding(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var req crowdfundingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithErr(w, r, err)
		return
	}
	cf, err := s.Wishlists.StartCrowdfunding(ctx, userID, pathString(r, "id"), req.TargetAmount)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, cf)
}

func (s *Server) contribute(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var req crowdfundingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithErr(w, r, err)
		return
	}
	cf, err := s.Wishlists.Contribute(ctx, userID, pathString(r, "id"), req.Amount)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cf)
}
