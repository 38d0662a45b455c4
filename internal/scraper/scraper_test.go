package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func newTestScraper(cache Cache) *Scraper {
	return New(Options{Timeout: 2 * time.Second, AllowPrivateNetworks: true}, cache)
}

func serveHTML(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestScrapeDegradesOnFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
	}{
		{name: "not found", status: http.StatusNotFound, contentType: "text/html"},
		{name: "server error", status: http.StatusInternalServerError, contentType: "text/html"},
		{name: "json body", status: http.StatusOK, contentType: "application/json"},
		{name: "image body", status: http.StatusOK, contentType: "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveHTML(t, tt.status, tt.contentType, `<html><head><meta property="og:title" content="Should not be read"></head></html>`)

			info, err := newTestScraper(nil).Scrape(context.Background(), srv.URL+"/")
			require.NoError(t, err)
			require.NotNil(t, info)
			assert.Equal(t, ProductInfo{}, *info)
		})
	}
}

func TestScrapeRejectsInvalidURL(t *testing.T) {
	s := newTestScraper(nil)
	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "https://"} {
		_, err := s.Scrape(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestScrapeRefusesPrivateAddressesByDefault(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, "text/html", `<title>Internal</title>`)

	info, err := New(Options{Timeout: time.Second}, nil).Scrape(context.Background(), srv.URL+"/product/blue-mug")
	require.NoError(t, err)
	assert.Equal(t, "Blue Mug", info.Title)
}

func TestScrapeOpenGraph(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, "text/html; charset=utf-8", `<!doctype html>
<html><head>
<title>fallback</title>
<meta property="og:title" content="Red Scarf | ShopName">
<meta property="og:site_name" content="ShopName">
<meta property="og:description" content="Warm &amp; soft">
<meta property="og:image" content="/img/scarf.jpg">
<meta property="product:price:amount" content="19.99">
<meta property="product:price:currency" content="EUR">
</head><body></body></html>`)

	info, err := newTestScraper(nil).Scrape(context.Background(), srv.URL+"/scarf")
	require.NoError(t, err)
	assert.Equal(t, "Red Scarf", info.Title)
	assert.Equal(t, "Warm & soft", info.Description)
	assert.Equal(t, srv.URL+"/img/scarf.jpg", info.ImageURL)
	require.NotNil(t, info.Price)
	assert.InDelta(t, 19.99, *info.Price, 0.001)
	assert.Equal(t, "EUR", info.Currency)
	assert.Equal(t, "ShopName", info.SiteName)
}

func TestScrapeTitleTagAndPriceClass(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, "text/html", `<html><head>
<title>Tom &amp;amp; Jerry Mug</title></head>
<body><span class="product-price">$ 24,50</span></body></html>`)

	info, err := newTestScraper(nil).Scrape(context.Background(), srv.URL+"/mug")
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry Mug", info.Title)
	require.NotNil(t, info.Price)
	assert.InDelta(t, 24.5, *info.Price, 0.001)
	assert.Equal(t, "USD", info.Currency)
}

func TestScrapeUsesURLWhenPageHasNoTitle(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, "text/html", `<html><body>nothing here</body></html>`)

	info, err := newTestScraper(nil).Scrape(context.Background(), srv.URL+"/p/lego-star-destroyer")
	require.NoError(t, err)
	assert.Equal(t, "Lego Star Destroyer", info.Title)
}

func TestScrapeCachesSuccessfulFetches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<meta property="og:title" content="Cached Lamp">`))
	}))
	defer srv.Close()

	cache := &memoryCache{data: map[string][]byte{}}
	s := newTestScraper(cache)

	first, err := s.Scrape(context.Background(), srv.URL+"/lamp")
	require.NoError(t, err)
	second, err := s.Scrape(context.Background(), srv.URL+"/lamp")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Cached Lamp", second.Title)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Contains(t, cache.data, cacheKey(srv.URL+"/lamp"))
}

func TestExtractAmazonDOM(t *testing.T) {
	body := `<html><head><title>Amazon.com: Echo Dot</title></head><body>
<span id="productTitle">  Echo Dot (5th Gen)  </span>
<img id="landingImage" src="https://m.media-amazon.com/small.jpg" data-old-hires="https://m.media-amazon.com/large.jpg">
<span class="a-price"><span class="a-offscreen">$49.99</span></span>
</body></html>`

	info := extract(body, mustURL(t, "https://www.amazon.com/Echo-Dot/dp/B09B8V1LZ3"))
	assert.Equal(t, "Echo Dot (5th Gen)", info.Title)
	assert.Equal(t, "https://m.media-amazon.com/large.jpg", info.ImageURL)
	require.NotNil(t, info.Price)
	assert.InDelta(t, 49.99, *info.Price, 0.001)
	assert.Equal(t, "USD", info.Currency)
}

func TestExtractAmazonJSONLD(t *testing.T) {
	body := `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@graph":[{"@type":"WebPage","name":"page"},
{"@type":"Product","name":"Kindle Paperwhite","image":["https://img.example/k.jpg"],
 "offers":[{"@type":"Offer","price":"129.99","priceCurrency":"GBP"}]}]}
</script></head><body></body></html>`

	info := extract(body, mustURL(t, "https://www.amazon.co.uk/dp/B08KTZ8249"))
	assert.Equal(t, "Kindle Paperwhite", info.Title)
	assert.Equal(t, "https://img.example/k.jpg", info.ImageURL)
	require.NotNil(t, info.Price)
	assert.InDelta(t, 129.99, *info.Price, 0.001)
	assert.Equal(t, "GBP", info.Currency)
}

func TestExtractPricePatternOrder(t *testing.T) {
	body := `<div data-price="15.00"></div><script>{"price": "12.50"}</script>`
	price := extractPrice(body)
	require.NotNil(t, price)
	assert.InDelta(t, 12.5, *price, 0.001)

	assert.Nil(t, extractPrice(`<span data-price="0">free</span>`))
}

func TestExtractCurrency(t *testing.T) {
	assert.Equal(t, "CHF", extractCurrency(`{"priceCurrency": "CHF"} costs $3`))
	assert.Equal(t, "UAH", extractCurrency(`ціна 500 ₴`))
	assert.Equal(t, "INR", extractCurrency(`₹ 999`))
	assert.Equal(t, "", extractCurrency(`no money here`))
}

func TestParsePriceText(t *testing.T) {
	tests := map[string]float64{
		"$1,299.99": 1299.99,
		"12,50 €":   12.5,
		"1.299,00":  1299,
		"£7":        7,
	}
	for in, want := range tests {
		got := parsePriceText(in)
		require.NotNil(t, got, in)
		assert.InDelta(t, want, *got, 0.001, in)
	}
	assert.Nil(t, parsePriceText("call us"))
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Red Scarf", cleanTitle("ShopName: Red Scarf", "ShopName"))
	assert.Equal(t, "Red Scarf", cleanTitle("Red Scarf – shopname", "ShopName"))
	assert.Equal(t, "Red Scarf", cleanTitle("  Red Scarf ", ""))
}

func TestGuessTitle(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.amazon.com/Apple-AirPods-Pro/dp/B0BDHWDR12", "Apple Airpods Pro"},
		{"https://www.amazon.com/dp/B0BDHWDR12", ""},
		{"https://shop.example.com/product/red-wool-scarf.html?x=1", "Red Wool Scarf"},
		{"https://example.com/items/cozy_blanket-3f9a8b7c6d", "Cozy Blanket"},
		{"https://www.etsy.com/etsy", ""},
		{"https://example.com/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GuessTitle(mustURL(t, tt.url)), tt.url)
	}
}
