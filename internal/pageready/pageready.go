// Package pageready provides the small readiness utilities shared across
// the Tab Controller and Site Adapters (spec.md §4.2/§4.3, C7): waiting
// for DOM/network settling beyond what a single selector wait covers, and
// a best-effort detector for bot-challenge interstitials (Cloudflare,
// hCaptcha, and similar) that would otherwise make every subsequent
// selector wait time out with a confusing error.
package pageready

import (
	"context"
	"strings"
	"time"

	"github.com/dgnsrekt/browserbridge/internal/browserctx"
)

// challengeMarkers are substrings observed in the title or body of known
// bot-challenge interstitials. This is necessarily a heuristic: there is
// no CDP signal for "this is a challenge page", only whatever the page
// itself renders.
var challengeMarkers = []string{
	"Just a moment...",
	"Checking your browser before accessing",
	"Attention Required! | Cloudflare",
	"hcaptcha-challenge",
	"g-recaptcha",
	"cf-challenge",
}

// IsChallengePage reports whether page's current title or markup matches
// a known bot-challenge interstitial. A false negative just means the
// normal selector-wait timeout fires later with a less specific error.
func IsChallengePage(ctx context.Context, page browserctx.Page) bool {
	title := page.Title()
	for _, marker := range challengeMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	content, err := page.Content(ctx)
	if err != nil {
		return false
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// WaitUntilSettled waits for DOM readiness and then for the network to go
// quiet, giving up after timeout. It does not fail on a detected challenge
// page; callers decide whether that is fatal for their operation.
func WaitUntilSettled(ctx context.Context, page browserctx.Page, timeout time.Duration) error {
	if err := page.WaitDOMReady(ctx, timeout); err != nil {
		return err
	}
	return page.WaitNetworkIdle(ctx, timeout)
}
