package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wishbucket/internal/affiliate"
	"wishbucket/internal/api"
	"wishbucket/internal/bot"
	"wishbucket/internal/config"
	"wishbucket/internal/database"
	"wishbucket/internal/hints"
	"wishbucket/internal/identity"
	"wishbucket/internal/logging"
	"wishbucket/internal/market"
	"wishbucket/internal/metrics"
	"wishbucket/internal/notify"
	"wishbucket/internal/payment"
	"wishbucket/internal/profile"
	"wishbucket/internal/referral"
	"wishbucket/internal/santa"
	"wishbucket/internal/scraper"
	"wishbucket/internal/social"
	"wishbucket/internal/wishlist"
	"wishbucket/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the bot and the background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	closer := logging.Setup(cfg)
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("Invalid configuration")
		return err
	}
	metrics.InitPrometheus()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg)
	if err != nil {
		log.WithError(err).Error("Could not connect to database")
		return err
	}

	var (
		marker worker.Marker = worker.NewMemoryMarker()
		cache  scraper.Cache
	)
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-process markers and no scrape cache")
	} else {
		defer closeRedis(rdb)
		marker = worker.NewRedisMarker(rdb)
		cache = scraper.NewRedisCache(rdb)
	}

	rewriter, err := affiliate.Load(cfg.AffiliateConfigPath)
	if err != nil {
		log.WithError(err).Error("Could not load affiliate programs")
		return err
	}
	catalog, err := market.LoadCatalog(cfg.MarketConfigPath)
	if err != nil {
		log.WithError(err).Error("Could not load market catalog")
		return err
	}

	dispatcher := notify.NewDispatcher(db, nil, notify.Options{
		Workers:      cfg.DispatchWorkers,
		PollInterval: cfg.DispatchInterval,
	})

	referrals := referral.NewService(db, cfg, dispatcher)
	socialSvc := social.NewService(db, dispatcher)
	hintSvc := hints.NewService(db)
	premium := payment.NewService(db, payment.NewClient(cfg.YookassaShopID, cfg.YookassaKey), cfg, dispatcher)

	deps := api.Deps{
		Config:    cfg,
		DB:        db,
		Resolver:  identity.NewResolver(cfg.BotToken, cfg.SessionSecret(), cfg.InitDataMaxAge),
		Profiles:  profile.NewService(db, referrals.Registry()),
		Referrals: referrals,
		Social:    socialSvc,
		Wishlists: wishlist.NewService(db, rewriter, dispatcher, cfg.BotUsername),
		Scraper:   scraper.New(scraper.Options{Timeout: cfg.ScrapeTimeout, CacheTTL: cfg.ScrapeCacheTTL}, cache),
		Affiliate: rewriter,
		Notify:    notify.NewService(db, dispatcher),
		Market:    market.NewService(db, catalog),
		Santas:    santa.NewService(db, dispatcher),
		Hints:     hintSvc,
		Premium:   premium,
		Webhooks:  payment.NewHandler(premium, cfg.AllowedYooIp, cfg.TrustProxy),
	}

	var tgBot *bot.Bot
	if cfg.BotEnabled && cfg.BotToken != "" {
		tgBot, err = bot.NewBot(cfg.BotToken, notify.Links{BotUsername: cfg.BotUsername, WebAppURL: cfg.WebAppURL})
		if err != nil {
			log.WithError(err).Error("Could not create Telegram bot")
			return err
		}
		tgBot.Profiles = deps.Profiles
		tgBot.Referrals = referrals
		tgBot.Social = socialSvc
		tgBot.Wishlists = deps.Wishlists
		tgBot.Hints = hintSvc
		dispatcher.SetSender(tgBot)
		hintSvc.SetResender(tgBot)
	} else {
		log.Warn("Telegram bot disabled, notifications will be recorded without delivery")
	}

	server := api.NewServer(deps)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	dispatcher.Start()
	defer dispatcher.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		worker.NewChecker(db, marker, socialSvc, dispatcher, cfg.CheckerInterval, cfg.BirthdayWindow).Start(gctx)
		return nil
	})
	g.Go(func() error {
		server.Limiter.Cleanup(gctx)
		return nil
	})
	if tgBot != nil {
		g.Go(func() error {
			if err := tgBot.Start(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	log.Info("WishBucket started")
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Service stopped with error")
		return err
	}
	log.Info("WishBucket stopped")
	return nil
}

func closeRedis(rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("Failed to close Redis client")
	}
}
