// Package metrics holds the Prometheus collectors shared by the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
	AuthRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Total number of unauthorized requests",
		},
		[]string{"reason"},
	)
	ReferralRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishbucket_referral_redemptions_total",
			Help: "Referral code applications by outcome",
		},
		[]string{"result"},
	)
	NotificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishbucket_notifications_dispatched_total",
			Help: "Outbox deliveries by outcome",
		},
		[]string{"status"},
	)
	ScrapeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishbucket_scrape_requests_total",
			Help: "URL metadata extractions by outcome",
		},
		[]string{"result"},
	)
	MarketPurchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishbucket_market_purchases_total",
			Help: "Points market purchases by item",
		},
		[]string{"item"},
	)
)

var registerOnce sync.Once

// InitPrometheus registers the collectors with the default registry.
func InitPrometheus() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthRejections,
			ReferralRedemptions,
			NotificationsDispatched,
			ScrapeRequests,
			MarketPurchases,
		)
	})
}
