package scraper

import (
	"strings"

	"github.com/tidwall/gjson"
)

func isAmazon(host string) bool {
	return strings.Contains(strings.ToLower(host), "amazon.")
}

func applyAmazon(p *page, info *ProductInfo) {
	if product, ok := findLDProduct(p.jsonLD); ok {
		fillString(&info.Title, product.Get("name").String())
		fillString(&info.Description, product.Get("description").String())
		fillString(&info.ImageURL, ldImage(product.Get("image")))

		offer := product.Get("offers")
		if offer.IsArray() {
			offer = offer.Get("0")
		}
		if info.Price == nil {
			if v := offer.Get("price"); v.Exists() && v.Float() > 0 {
				price := v.Float()
				info.Price = &price
			}
		}
		fillString(&info.Currency, offer.Get("priceCurrency").String())
	}

	if n, ok := p.ids["productTitle"]; ok {
		fillString(&info.Title, strings.TrimSpace(textOf(n)))
	}
	if n, ok := p.ids["landingImage"]; ok {
		fillString(&info.ImageURL, firstAttr(n, "data-old-hires", "src"))
	}

	if info.Price == nil {
		for _, text := range []string{idText(p, "priceblock_ourprice"), idText(p, "priceblock_dealprice"), p.offscreen} {
			if price := parsePriceText(text); price != nil {
				info.Price = price
				fillString(&info.Currency, currencyFromSymbol(text))
				break
			}
		}
	}
}

// findLDProduct looks through JSON-LD blocks for a schema.org Product,
// including products nested in arrays and @graph.
func findLDProduct(blocks []string) (gjson.Result, bool) {
	for _, raw := range blocks {
		if !gjson.Valid(raw) {
			continue
		}
		if r, ok := productIn(gjson.Parse(raw)); ok {
			return r, true
		}
	}
	return gjson.Result{}, false
}

func productIn(r gjson.Result) (gjson.Result, bool) {
	if r.IsArray() {
		for _, el := range r.Array() {
			if p, ok := productIn(el); ok {
				return p, true
			}
		}
		return gjson.Result{}, false
	}
	if !r.IsObject() {
		return gjson.Result{}, false
	}
	if isProductType(r.Get("@type")) {
		return r, true
	}
	if graph := r.Get("@graph"); graph.Exists() {
		return productIn(graph)
	}
	return gjson.Result{}, false
}

func isProductType(t gjson.Result) bool {
	if t.IsArray() {
		for _, el := range t.Array() {
			if el.String() == "Product" {
				return true
			}
		}
		return false
	}
	return t.String() == "Product"
}

func ldImage(img gjson.Result) string {
	switch {
	case img.IsArray():
		return ldImage(img.Get("0"))
	case img.IsObject():
		return img.Get("url").String()
	default:
		return img.String()
	}
}

func idText(p *page, id string) string {
	if n, ok := p.ids[id]; ok {
		return strings.TrimSpace(textOf(n))
	}
	return ""
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}
