package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

// Tried in order; the first positive value wins.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"price":\s*"?(\d+(?:[.,]\d{2})?)`),
	regexp.MustCompile(`"offers"[^}]*"price":\s*"?(\d+(?:[.,]\d{2})?)`),
	regexp.MustCompile(`(?i)property="product:price:amount"[^>]*content="(\d+(?:[.,]\d{2})?)"`),
	regexp.MustCompile(`(?i)itemprop="price"[^>]*content="(\d+(?:[.,]\d{2})?)"`),
	regexp.MustCompile(`(?i)data-price="(\d+(?:[.,]\d{2})?)"`),
	regexp.MustCompile(`(?i)class="[^"]*price[^"]*"[^>]*>[\s$€£¥]*(\d+(?:[.,]\d{2})?)`),
}

var currencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"priceCurrency":\s*"([A-Z]{3})"`),
	regexp.MustCompile(`(?i)property="product:price:currency"[^>]*content="([A-Z]{3})"`),
	regexp.MustCompile(`(?i)itemprop="priceCurrency"[^>]*content="([A-Z]{3})"`),
}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₴", "UAH"},
	{"₹", "INR"},
	{"₽", "RUB"},
}

var numberPattern = regexp.MustCompile(`\d[\d.,\s]*`)

func extractPrice(body string) *float64 {
	for _, re := range pricePatterns {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err == nil && v > 0 {
			return &v
		}
	}
	return nil
}

func extractCurrency(body string) string {
	for _, re := range currencyPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return currencyFromSymbol(body)
}

func currencyFromSymbol(s string) string {
	for _, c := range currencySymbols {
		if strings.Contains(s, c.symbol) {
			return c.code
		}
	}
	return ""
}

// parsePriceText reads a human formatted price such as "$1,299.99" or
// "12,50 €".
func parsePriceText(s string) *float64 {
	raw := numberPattern.FindString(s)
	raw = strings.Join(strings.Fields(raw), "")
	raw = strings.TrimRight(raw, ".,")
	if raw == "" {
		return nil
	}

	comma := strings.LastIndex(raw, ",")
	dot := strings.LastIndex(raw, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case comma >= 0:
		if len(raw)-comma-1 == 2 {
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
