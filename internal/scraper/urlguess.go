package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	asinSegment    = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	asinWord       = regexp.MustCompile(`\b[A-Z0-9]{10}\b`)
	hexWord        = regexp.MustCompile(`(?i)\b[a-f0-9]{8,}\b`)
	pageExtension  = regexp.MustCompile(`(?i)\.(html|php|aspx?)$`)
	whitespace     = regexp.MustCompile(`\s+`)
	productMarkers = map[string]bool{"product": true, "p": true, "item": true, "dp": true, "pd": true, "goods": true}
)

// GuessTitle derives a product name from the URL path, e.g.
// "/product/red-wool-scarf" gives "Red Wool Scarf". It returns "" when the
// path carries nothing better than the shop's own name.
func GuessTitle(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return ""
	}

	name := ""
	if strings.Contains(host, "amazon") {
		for i, s := range segments {
			if s == "dp" || s == "gp" {
				if i > 0 && !asinSegment.MatchString(segments[i-1]) {
					name = segments[i-1]
				}
				break
			}
		}
		if name == "" {
			last := segments[len(segments)-1]
			if !asinSegment.MatchString(last) && last != "dp" && last != "ref" {
				name = last
			}
		}
	} else {
		for i, s := range segments {
			if productMarkers[strings.ToLower(s)] && i+1 < len(segments) {
				name = segments[i+1]
				break
			}
		}
		if name == "" {
			name = segments[len(segments)-1]
		}
	}

	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = pageExtension.ReplaceAllString(name, "")
	name = asinWord.ReplaceAllString(name, "")
	name = hexWord.ReplaceAllString(name, "")
	name = strings.TrimSpace(whitespace.ReplaceAllString(name, " "))
	if name == "" {
		return ""
	}
	name = cases.Title(language.Und).String(strings.ToLower(name))

	domain := strings.SplitN(host, ".", 2)[0]
	if strings.EqualFold(name, domain) {
		return ""
	}
	return name
}
