package pipeline

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkSource tags where a harvested link was found. Description-sourced links
// carry more signal than links scraped out of page markup.
type LinkSource string

const (
	SourceDescription LinkSource = "description"
	SourcePage        LinkSource = "page"
)

const (
	confidenceDescription = 0.9
	confidencePage        = 0.6
)

// Candidate is a harvested URL with its provenance.
type Candidate struct {
	URL        string     `json:"url"`
	Source     LinkSource `json:"source"`
	Confidence float64    `json:"confidence"`
}

// urlPattern matches URL-shaped substrings broadly. It is deliberately not an
// RFC validator; trailing punctuation is stripped afterwards.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>\\)\]]+`)

// Image CDNs and messaging-group hosts are never product links.
var denyHosts = []string{
	"i.ytimg.com",
	"yt3.ggpht.com",
	"cdninstagram.com",
	"fbcdn.net",
	"t.me",
	"chat.whatsapp.com",
	"wa.me",
	"discord.gg",
}

// Known commerce, affiliate and shortener hosts are product links outright.
var allowHosts = []string{
	"amzn.to",
	"amazon.com",
	"amazon.com.br",
	"shopee.com.br",
	"shp.ee",
	"aliexpress.com",
	"s.click.aliexpress.com",
	"mercadolivre.com.br",
	"magazineluiza.com.br",
	"magazinevoce.com.br",
	"hotmart.com",
	"monetizze.com.br",
	"bit.ly",
	"tinyurl.com",
	"linktr.ee",
	"beacons.ai",
}

var productKeywords = []string{
	"buy", "cart", "checkout", "product", "shop", "store", "item",
	"promo", "oferta", "produto", "loja",
}

var affiliateParams = []string{"ref", "tag", "aff", "affiliate", "afid"}

// HarvestLinks scans the description and page text for URL-shaped substrings,
// deduplicating by case-insensitive exact match in order of first appearance.
// Description links win over page duplicates.
func HarvestLinks(description, page string) []Candidate {
	seen := make(map[string]struct{})
	var out []Candidate
	harvest := func(text string, source LinkSource, confidence float64) {
		for _, raw := range urlPattern.FindAllString(text, -1) {
			raw = strings.TrimRight(raw, ".,;:!?")
			key := strings.ToLower(raw)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Candidate{URL: raw, Source: source, Confidence: confidence})
		}
	}
	harvest(description, SourceDescription, confidenceDescription)
	harvest(page, SourcePage, confidencePage)
	return out
}

func hostMatches(host string, list []string) bool {
	for _, h := range list {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// IsProductLink classifies one URL. Denylist wins over everything, the
// allowlist accepts outright, anything else falls through to the keyword and
// affiliate-parameter heuristics.
func IsProductLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if hostMatches(host, denyHosts) {
		return false
	}
	if hostMatches(host, allowHosts) {
		return true
	}

	pathAndQuery := strings.ToLower(u.Path + "?" + u.RawQuery)
	for _, kw := range productKeywords {
		if strings.Contains(pathAndQuery, kw) {
			return true
		}
	}
	query := u.Query()
	for _, param := range affiliateParams {
		if query.Get(param) != "" {
			return true
		}
	}
	return false
}

// ClassifyProducts filters the candidates down to product links.
func ClassifyProducts(candidates []Candidate) []Candidate {
	var products []Candidate
	for _, c := range candidates {
		if IsProductLink(c.URL) {
			products = append(products, c)
		}
	}
	return products
}
