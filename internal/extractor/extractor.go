// Package extractor finds unsubscribe links in an email's headers and HTML
// body.
package extractor

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// HeaderListUnsubscribe is the RFC 2369 header carrying sender-provided links.
const HeaderListUnsubscribe = "List-Unsubscribe"

var (
	headerHTTPRegex   = regexp.MustCompile(`<(https?://[^>]+)>`)
	headerMailtoRegex = regexp.MustCompile(`<(mailto:[^>]+)>`)

	anchorKeywords = []string{"unsubscribe", "opt out", "opt-out"}
)

const footerSelector = "footer a, .footer a, #footer a"

// Extractor implements schemas.LinkExtractor.
type Extractor struct {
	logger *zap.Logger
}

var _ schemas.LinkExtractor = (*Extractor)(nil)

// New creates an extractor.
func New(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("link_extractor")}
}

// ExtractLinks returns every candidate link, header links first, then body
// anchors, then footer anchors. A URL appears at most once and keeps the
// source it was first seen in.
func (e *Extractor) ExtractLinks(htmlBody string, headers map[string]string) []schemas.UnsubscribeLink {
	links := make([]schemas.UnsubscribeLink, 0, 4)
	seen := make(map[string]struct{})
	add := func(rawURL, text string, source schemas.LinkSource) {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			return
		}
		if _, dup := seen[rawURL]; dup {
			return
		}
		seen[rawURL] = struct{}{}
		links = append(links, schemas.UnsubscribeLink{
			URL:        rawURL,
			Kind:       schemas.KindFromURL(rawURL),
			Source:     source,
			OriginHint: OriginHint(rawURL),
			Text:       text,
		})
	}

	if header := headerValue(headers, HeaderListUnsubscribe); header != "" {
		if m := headerHTTPRegex.FindStringSubmatch(header); m != nil {
			add(m[1], "", schemas.SourceHeader)
		}
		if m := headerMailtoRegex.FindStringSubmatch(header); m != nil {
			add(m[1], "", schemas.SourceHeader)
		}
	}

	if strings.TrimSpace(htmlBody) == "" {
		return links
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		e.logger.Warn("Failed to parse message body, using header links only.", zap.Error(err))
		return links
	}

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		text := normalizeSpace(s.Text())
		if !containsAny(strings.ToLower(text), anchorKeywords) {
			return
		}
		if isHTTP(href) || isMailto(href) {
			add(href, text, schemas.SourceBody)
		}
	})

	doc.Find(footerSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !isHTTP(href) {
			return
		}
		text := normalizeSpace(s.Text())
		if strings.Contains(strings.ToLower(text), "unsubscribe") || strings.Contains(strings.ToLower(href), "unsubscribe") {
			add(href, text, schemas.SourceFooter)
		}
	})

	e.logger.Debug("Extracted unsubscribe candidates.", zap.Int("count", len(links)))
	return links
}

// PickBest prefers a header-provided web link, then any web link, then
// whatever came first. It returns nil for an empty list.
func (e *Extractor) PickBest(links []schemas.UnsubscribeLink) *schemas.UnsubscribeLink {
	if len(links) == 0 {
		return nil
	}
	for i := range links {
		if links[i].Source == schemas.SourceHeader && links[i].Kind == schemas.LinkHTTP {
			best := links[i]
			return &best
		}
	}
	for i := range links {
		if links[i].Kind == schemas.LinkHTTP {
			best := links[i]
			return &best
		}
	}
	best := links[0]
	return &best
}

// OriginHint returns the registrable domain of an http(s) link, or the
// domain part of a mailto address. It returns "" when none can be derived.
func OriginHint(rawURL string) string {
	var host string
	if isMailto(rawURL) {
		addr := strings.TrimPrefix(strings.TrimSpace(rawURL)[len("mailto:"):], "//")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		at := strings.LastIndex(addr, "@")
		if at < 0 {
			return ""
		}
		host = addr[at+1:]
	} else {
		u, err := url.Parse(strings.TrimSpace(rawURL))
		if err != nil {
			return ""
		}
		host = u.Hostname()
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func isHTTP(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://")
}

func isMailto(href string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "mailto:")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
