// Package bypass recognizes result pages that are challenges or blocks
// rather than real search results.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the part of a search response the detectors look at.
type Page struct {
	StatusCode int
	URL        string
	Header     http.Header
	Body       []byte
}

// Detector examines a page to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(p *Page) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectGoogleSorry,
		detectCaptchaMarkup,
		detectCloudflare,
	}
}

// Analyze runs p through detectors in order and reports the first match.
func Analyze(p *Page, detectors []Detector) (bool, string) {
	if p == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(p); detected {
			return true, source
		}
	}
	return false, ""
}

// detectGoogleSorry matches Google's "unusual traffic" interstitial, served
// from /sorry/ either directly or through a redirect. The interstitial text
// alone is not enough on a 2xx page, since a results page for that phrase
// repeats it; there it must come with the sorry form.
func detectGoogleSorry(p *Page) (bool, string) {
	if strings.Contains(p.URL, "/sorry/") || strings.Contains(p.Header.Get("Location"), "/sorry/") {
		return true, "GoogleSorry"
	}
	lower := bytes.ToLower(p.Body)
	if !bytes.Contains(lower, []byte("our systems have detected unusual traffic")) &&
		!bytes.Contains(lower, []byte("unusual traffic from your computer network")) {
		return false, ""
	}
	if p.StatusCode < 200 || p.StatusCode > 299 ||
		bytes.Contains(lower, []byte(`action="/sorry/`)) ||
		bytes.Contains(lower, []byte(`id="captcha-form"`)) {
		return true, "GoogleSorry"
	}
	return false, ""
}

// detectCaptchaMarkup looks for an embedded captcha form on an otherwise
// normal looking page.
func detectCaptchaMarkup(p *Page) (bool, string) {
	for _, sig := range [][]byte{
		[]byte(`id="captcha-form"`),
		[]byte(`class="g-recaptcha"`),
		[]byte(`id="recaptcha"`),
	} {
		if bytes.Contains(p.Body, sig) {
			return true, "Captcha"
		}
	}
	return false, ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(p.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(p.Body, []byte("cf-turnstile")) ||
		bytes.Contains(p.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}
