package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"wishbucket/internal/identity"
	"wishbucket/internal/models"
	"wishbucket/internal/profile"
	"wishbucket/internal/referral"
	"wishbucket/internal/social"
)

const referralStartPrefix = "ref_"

type sessionRequest struct {
	InitData string `json:"initData"`
}

type sessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      *profile.Profile `json:"user"`
	IsNew     bool             `json:"isNew"`
	Referral  *referral.Result `json:"referral,omitempty"`
}

// createSession exchanges signed init data for a session token. A first
// visit opened through a referral link redeems the code on the way.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithErr(w, r, err)
		return
	}
	data, err := identity.ValidateInitData(req.InitData, s.Config.BotToken, s.Config.InitDataMaxAge, s.now())
	if err != nil {
		respondWithErr(w, r, err)
		return
	}

	p, isNew, err := s.Profiles.GetOrCreate(ctx, data.User)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}

	resp := sessionResponse{User: p, IsNew: isNew}
	if code, ok := strings.CutPrefix(data.StartParam, referralStartPrefix); ok && isNew {
		result, err := s.Referrals.Apply(ctx, data.User.ID, code)
		if err != nil {
			log.WithError(err).WithField("user_id", data.User.ID).Warn("Referral from start param not applied")
		} else {
			resp.Referral = &result
			if p, err = s.Profiles.Get(ctx, data.User.ID); err == nil {
				resp.User = p
			}
		}
	}

	ttl := s.Config.SessionTTL
	resp.Token, err = identity.IssueToken(s.Config.SessionSecret(), data.User.ID, data.User.Username, ttl)
	if err != nil {
		respondWithErr(w, r, fmt.Errorf("issue session token: %w", err))
		return
	}
	resp.ExpiresAt = s.now().Add(ttl).UTC()
	respondWithJSON(w, http.StatusOK, resp)
}

// getProfile creates the profile on first read when the caller sent init data.
func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var (
		p   *profile.Profile
		err error
	)
	if tu, ok := identity.TelegramUserFrom(ctx); ok {
		p, _, err = s.Profiles.GetOrCreate(ctx, *tu)
	} else {
		userID, _ := identity.UserID(ctx)
		p, err = s.Profiles.Get(ctx, userID)
	}
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var in profile.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		respondWithErr(w, r, err)
		return
	}
	p, err := s.Profiles.Update(ctx, userID, in)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	users, err := s.Social.Search(ctx, userID, r.URL.Query().Get("q"))
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, users)
}

type publicProfile struct {
	User      *social.Friend    `json:"user"`
	Wishlists []models.Wishlist `json:"wishlists"`
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	targetID, err := pathInt64(r, "id")
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	user, err := s.Social.Lookup(ctx, userID, targetID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	lists, err := s.Wishlists.PublicWishlists(ctx, targetID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, publicProfile{User: user, Wishlists: lists})
}

func (s *Server) listFollowing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	friends, err := s.Social.Following(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, friends)
}

func (s *Server) listFollowers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	followers, err := s.Social.Followers(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, followers)
}

func (s *Server) birthdays(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	reminders, err := s.Social.BirthdayReminders(ctx, userID, s.Config.BirthdayWindow, s.now())
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reminders)
}

func (s *Server) follow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	friendID, err := pathInt64(r, "id")
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	if err := s.Social.Follow(ctx, userID, friendID); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

func (s *Server) unfollow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	friendID, err := pathInt64(r, "id")
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	if err := s.Social.Unfollow(ctx, userID, friendID); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) referralStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	stats, err := s.Referrals.Stats(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) listReferrals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	refs, err := s.Referrals.List(ctx, userID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, refs)
}

func (s *Server) referralQR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := s.Referrals.QRCode(ctx, userID, size)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type applyReferralRequest struct {
	Code string `json:"code"`
}

func (s *Server) applyReferral(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	userID, _ := identity.UserID(ctx)

	var req applyReferralRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithErr(w, r, err)
		return
	}
	result, err := s.Referrals.Apply(ctx, userID, req.Code)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
