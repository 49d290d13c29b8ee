package serp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnparseableMarkup is returned when the input is not an HTML document at all.
var ErrUnparseableMarkup = errors.New("unparseable result page markup")

// Selectors locates ad and organic result slots on a result page.
type Selectors struct {
	// TopAds matches each ad slot in the block above the organic results.
	TopAds string
	// Results matches each organic result slot.
	Results string
	// Link matches the anchor inside a slot that carries its URL.
	Link string
}

// GoogleSelectors matches Google's desktop result page.
var GoogleSelectors = Selectors{
	TopAds:  "#tads .uEierd, #tads [data-text-ad]",
	Results: "#search .g, #rso .g",
	Link:    "a[data-pcu], a[href]",
}

// Parsed holds the URLs extracted from a result page, in document order.
// Duplicates are kept.
type Parsed struct {
	AdURLs     []string
	ResultURLs []string
}

// AdCount is the number of top ad slots found.
func (p *Parsed) AdCount() int {
	return len(p.AdURLs)
}

// Parse extracts top ad and organic result URLs from a Google result page.
// A page without ad or result blocks parses to empty lists.
func Parse(html string) (*Parsed, error) {
	return ParseWith(html, GoogleSelectors)
}

// ParseWith is Parse with a custom selector set.
func ParseWith(html string, sel Selectors) (*Parsed, error) {
	if strings.TrimSpace(html) == "" || !strings.Contains(html, "<") {
		return nil, ErrUnparseableMarkup
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableMarkup, err)
	}

	out := &Parsed{AdURLs: []string{}, ResultURLs: []string{}}

	doc.Find(sel.TopAds).Each(func(_ int, slot *goquery.Selection) {
		// An ad container and its inner text-ad node are one slot.
		if slot.ParentsFiltered(sel.TopAds).Length() > 0 {
			return
		}
		if u, ok := slotURL(slot, sel.Link, true); ok {
			out.AdURLs = append(out.AdURLs, u)
		}
	})

	results := doc.Find(sel.Results)
	results.Each(func(_ int, slot *goquery.Selection) {
		// Google nests result blocks; count only the outermost one.
		if slot.ParentsFiltered(sel.Results).Length() > 0 {
			return
		}
		if u, ok := slotURL(slot, sel.Link, false); ok {
			out.ResultURLs = append(out.ResultURLs, u)
		}
	})

	return out, nil
}

// slotURL returns the URL of the first usable link in slot. Ads prefer the
// data-pcu attribute, which holds the advertiser URL rather than the click
// tracker in href.
func slotURL(slot *goquery.Selection, linkSel string, ad bool) (string, bool) {
	var found string
	slot.Find(linkSel).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		raw := ""
		if ad {
			raw, _ = a.Attr("data-pcu")
		}
		if raw == "" {
			raw, _ = a.Attr("href")
		}
		if u, ok := cleanURL(raw); ok {
			found = u
			return false
		}
		return true
	})
	return found, found != ""
}

// cleanURL unwraps Google redirect links and accepts only absolute http(s) URLs.
func cleanURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if target := unwrapRedirect(raw); target != "" {
		raw = target
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return raw, true
}

// unwrapRedirect returns the target of a /url?q= style redirect, or "".
func unwrapRedirect(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path != "/url" {
		return ""
	}
	if u.Host != "" && !strings.Contains(u.Host, "google.") {
		return ""
	}
	q := u.Query()
	for _, key := range []string{"q", "url"} {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return ""
}
