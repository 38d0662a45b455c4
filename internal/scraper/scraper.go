// Package scraper extracts best-effort product metadata from arbitrary shop
// pages. Every field of the result is optional; fetch failures degrade to
// whatever can be guessed from the URL itself.
package scraper

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"wishbucket/internal/metrics"
)

var ErrInvalidURL = errors.New("invalid url")

type ProductInfo struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	SiteName    string   `json:"siteName,omitempty"`
}

type Options struct {
	Timeout      time.Duration
	CacheTTL     time.Duration
	MaxBodyBytes int64
	// AllowPrivateNetworks permits fetching loopback and private addresses.
	AllowPrivateNetworks bool
}

type Scraper struct {
	fetcher *fetcher
	cache   Cache
	ttl     time.Duration
}

func New(opts Options, cache Cache) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 6 * time.Hour
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	return &Scraper{
		fetcher: newFetcher(opts),
		cache:   cache,
		ttl:     opts.CacheTTL,
	}
}

// Scrape returns what can be learned about the product at rawURL. Only an
// unusable URL is an error.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*ProductInfo, error) {
	target, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	logger := log.WithField("url", target.String())
	key := cacheKey(target.String())

	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			logger.Warnf("Scrape cache read failed: %v", err)
		} else if ok {
			var cached ProductInfo
			if err := json.Unmarshal(raw, &cached); err == nil {
				metrics.ScrapeRequests.WithLabelValues("cache_hit").Inc()
				return &cached, nil
			}
		}
	}

	info := &ProductInfo{}
	body, finalURL, err := s.fetcher.fetch(ctx, target)
	fetched := err == nil
	if fetched {
		info = extract(body, finalURL)
	} else {
		logger.Debugf("Page fetch degraded: %v", err)
	}
	if info.Title == "" {
		info.Title = GuessTitle(target)
	}

	if fetched {
		metrics.ScrapeRequests.WithLabelValues("ok").Inc()
		if s.cache != nil {
			if raw, err := json.Marshal(info); err == nil {
				if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
					logger.Warnf("Scrape cache write failed: %v", err)
				}
			}
		}
	} else {
		metrics.ScrapeRequests.WithLabelValues("degraded").Inc()
	}
	return info, nil
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

func cacheKey(u string) string {
	sum := sha1.Sum([]byte(u))
	return "scrape:" + hex.EncodeToString(sum[:])
}
