package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// page is the subset of a parsed document the heuristics look at.
type page struct {
	meta      map[string]string
	title     string
	ids       map[string]*html.Node
	offscreen string
	jsonLD    []string
}

var amazonIDs = map[string]bool{
	"productTitle":         true,
	"landingImage":         true,
	"priceblock_ourprice":  true,
	"priceblock_dealprice": true,
}

func parsePage(body string) *page {
	p := &page{meta: map[string]string{}, ids: map[string]*html.Node{}}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return p
	}
	p.walk(doc, false)
	return p
}

func (p *page) walk(n *html.Node, inSVG bool) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "svg":
			inSVG = true
		case "meta":
			key := strings.ToLower(firstAttr(n, "property", "name", "itemprop"))
			content := strings.TrimSpace(getAttr(n, "content"))
			if key != "" && content != "" {
				if _, seen := p.meta[key]; !seen {
					p.meta[key] = content
				}
			}
		case "title":
			if !inSVG && p.title == "" {
				p.title = strings.TrimSpace(textOf(n))
			}
		case "script":
			if strings.EqualFold(getAttr(n, "type"), "application/ld+json") {
				p.jsonLD = append(p.jsonLD, textOf(n))
			}
		}
		if id := getAttr(n, "id"); amazonIDs[id] {
			if _, seen := p.ids[id]; !seen {
				p.ids[id] = n
			}
		}
		if p.offscreen == "" && hasClass(n, "a-offscreen") {
			p.offscreen = strings.TrimSpace(textOf(n))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, inSVG)
	}
}

func (p *page) firstMeta(keys ...string) string {
	for _, k := range keys {
		if v := p.meta[k]; v != "" {
			return v
		}
	}
	return ""
}

// extract runs the heuristics in priority order; later steps only fill
// fields earlier steps left empty.
func extract(body string, pageURL *url.URL) *ProductInfo {
	p := parsePage(body)
	info := &ProductInfo{
		Title:       p.firstMeta("og:title", "twitter:title"),
		Description: p.firstMeta("og:description", "twitter:description", "description"),
		ImageURL:    p.firstMeta("og:image", "twitter:image"),
		SiteName:    p.firstMeta("og:site_name"),
	}

	if isAmazon(pageURL.Hostname()) {
		applyAmazon(p, info)
	}
	if info.Title == "" {
		info.Title = p.title
	}

	if info.Price == nil {
		info.Price = extractPrice(body)
	}
	if info.Currency == "" {
		info.Currency = extractCurrency(body)
	}

	info.Title = cleanTitle(info.Title, info.SiteName)
	info.Description = strings.TrimSpace(html.UnescapeString(info.Description))
	info.ImageURL = resolveImage(info.ImageURL, pageURL)
	return info
}

const titleSeparators = `\s*[-|–—:]\s*`

func cleanTitle(title, siteName string) string {
	title = strings.TrimSpace(html.UnescapeString(title))
	if title == "" || siteName == "" {
		return title
	}
	name := regexp.QuoteMeta(strings.TrimSpace(html.UnescapeString(siteName)))
	suffix := regexp.MustCompile(`(?i)` + titleSeparators + name + `\s*$`)
	prefix := regexp.MustCompile(`(?i)^` + name + titleSeparators)
	title = suffix.ReplaceAllString(title, "")
	title = prefix.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

func resolveImage(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func firstAttr(n *html.Node, keys ...string) string {
	for _, k := range keys {
		if v := getAttr(n, k); v != "" {
			return v
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}
