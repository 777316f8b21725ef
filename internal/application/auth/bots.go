package auth

import (
	"net/http"
	"regexp"

	"github.com/x-way/crawlerdetect"
)

// BotPolicy decides which user agents are rejected as bots. Allow patterns take
// precedence over the crawler detector so first-party Shopify clients are never rejected.
type BotPolicy struct {
	Allow []*regexp.Regexp
	// IsCrawler classifies everything the allow list does not match
	IsCrawler func(userAgent string) bool
}

// DefaultBotPolicy rejects crawlers, link previewers and scripted HTTP clients, and
// allows the Shopify POS and mobile apps, whose user agents look like embedded browsers.
func DefaultBotPolicy() *BotPolicy {
	return &BotPolicy{
		Allow: []*regexp.Regexp{
			regexp.MustCompile(`Shopify POS/`),
			regexp.MustCompile(`Shopify Mobile/`),
		},
		IsCrawler: crawlerdetect.IsCrawler,
	}
}

// IsBot reports whether userAgent belongs to a bot. An empty user agent is not a bot.
func (p *BotPolicy) IsBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	for _, allow := range p.Allow {
		if allow.MatchString(userAgent) {
			return false
		}
	}
	return p.IsCrawler != nil && p.IsCrawler(userAgent)
}

// IsBotRequest applies the policy to the request's User-Agent header
func (p *BotPolicy) IsBotRequest(r *http.Request) bool {
	return p.IsBot(r.UserAgent())
}
