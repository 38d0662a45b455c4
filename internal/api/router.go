// Package api exposes the Mini-App HTTP interface.
package api

import (
	"context"
	"net/http"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/affiliate"
	"wishbucket/internal/config"
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

const requestTimeout = 10 * time.Second

// Deps are the services behind the HTTP handlers.
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Resolver  *identity.Resolver
	Profiles  *profile.Service
	Referrals *referral.Service
	Social    *social.Service
	Wishlists *wishlist.Service
	Scraper   *scraper.Scraper
	Affiliate *affiliate.Rewriter
	Notify    *notify.Service
	Market    *market.Service
	Santas    *santa.Service
	Hints     *hints.Service
	Premium   *payment.Service
	Webhooks  *payment.Handler
	Limiter   *RateLimiter
}

type Server struct {
	Deps
	now func() time.Time
}

func NewServer(deps Deps) *Server {
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter(deps.Config.RateLimitRPS, deps.Config.RateLimitBurst, deps.Config.TrustProxy)
	}
	return &Server{Deps: deps, now: time.Now}
}

// Handler builds the full router wrapped in CORS and panic recovery.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.Limiter.Middleware)
	r.Use(monitor)

	r.Handle("/metrics", basicAuth(s.Config.MetricsUser, s.Config.MetricsPass, promhttp.Handler())).Methods("GET")
	r.HandleFunc("/health", s.health).Methods("GET")
	if s.Webhooks != nil {
		r.HandleFunc("/webhooks/yookassa", s.Webhooks.HandleWebhook).Methods("POST")
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/session", s.createSession).Methods("POST")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(authenticate(s.Resolver))

	protected.HandleFunc("/profile", s.getProfile).Methods("GET")
	protected.HandleFunc("/profile", s.updateProfile).Methods("PUT")
	protected.HandleFunc("/users/search", s.searchUsers).Methods("GET")
	protected.HandleFunc("/users/{id:[0-9]+}", s.getUser).Methods("GET")

	protected.HandleFunc("/referrals/stats", s.referralStats).Methods("GET")
	protected.HandleFunc("/referrals/qr", s.referralQR).Methods("GET")
	protected.HandleFunc("/referrals/apply", s.applyReferral).Methods("POST")
	protected.HandleFunc("/referrals", s.listReferrals).Methods("GET")

	protected.HandleFunc("/friends", s.listFollowing).Methods("GET")
	protected.HandleFunc("/followers", s.listFollowers).Methods("GET")
	protected.HandleFunc("/birthdays", s.birthdays).Methods("GET")
	protected.HandleFunc("/friends/{id:[0-9]+}", s.follow).Methods("POST")
	protected.HandleFunc("/friends/{id:[0-9]+}", s.unfollow).Methods("DELETE")

	protected.HandleFunc("/wishlists", s.listWishlists).Methods("GET")
	protected.HandleFunc("/wishlists", s.createWishlist).Methods("POST")
	protected.HandleFunc("/wishlists/{id}", s.getWishlist).Methods("GET")
	protected.HandleFunc("/wishlists/{id}", s.updateWishlist).Methods("PUT")
	protected.HandleFunc("/wishlists/{id}", s.deleteWishlist).Methods("DELETE")
	protected.HandleFunc("/wishlists/{id}/share", s.shareWishlist).Methods("GET")
	protected.HandleFunc("/wishlists/{id}/items", s.addItem).Methods("POST")

	protected.HandleFunc("/items/{id}", s.updateItem).Methods("PUT")
	protected.HandleFunc("/items/{id}", s.deleteItem).Methods("DELETE")
	protected.HandleFunc("/items/{id}/reserve", s.reserveItem).Methods("POST")
	protected.HandleFunc("/items/{id}/unreserve", s.unreserveItem).Methods("POST")
	protected.HandleFunc("/items/{id}/purchase", s.purchaseItem).Methods("POST")
	protected.HandleFunc("/items/{id}/crowdfunding", s.startCrowdfunding).Methods("POST")
	protected.HandleFunc("/items/{id}/crowdfunding/contribute", s.contribute).Methods("POST")

	protected.HandleFunc("/scrape", s.scrape).Methods("POST")

	protected.HandleFunc("/notifications", s.listNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", s.unreadCount).Methods("GET")
	protected.HandleFunc("/notifications/read-all", s.markAllRead).Methods("PUT")
	protected.HandleFunc("/notifications/{id}/read", s.markRead).Methods("PUT")

	protected.HandleFunc("/market", s.storefront).Methods("GET")
	protected.HandleFunc("/market/purchase", s.marketPurchase).Methods("POST")
	protected.HandleFunc("/market/purchases", s.marketHistory).Methods("GET")

	protected.HandleFunc("/santas", s.listSantas).Methods("GET")
	protected.HandleFunc("/santas", s.createSanta).Methods("POST")
	protected.HandleFunc("/santas/{id}", s.getSanta).Methods("GET")
	protected.HandleFunc("/santas/{id}/join", s.joinSanta).Methods("POST")
	protected.HandleFunc("/santas/{id}/draw", s.drawSanta).Methods("POST")
	protected.HandleFunc("/santas/{id}/assignment", s.santaAssignment).Methods("GET")

	protected.HandleFunc("/hints", s.listHints).Methods("GET")
	protected.HandleFunc("/hints/counts", s.hintCounts).Methods("GET")
	protected.HandleFunc("/hints/{id}", s.updateHint).Methods("PUT")
	protected.HandleFunc("/hints/{id}", s.deleteHint).Methods("DELETE")
	protected.HandleFunc("/hints/{id}/resend", s.resendHint).Methods("POST")

	protected.HandleFunc("/premium/checkout", s.premiumCheckout).Methods("POST")

	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(s.Config.CORSOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := gorillaHandlers.RecoveryHandler(
		gorillaHandlers.RecoveryLogger(log.StandardLogger()),
		gorillaHandlers.PrintRecoveryStack(true),
	)
	return recovery(cors(r))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.WithError(err).Warn("Health check failed")
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "wishbucket"})
}
