// Package adapter implements the Site Adapter abstraction (spec.md §4.3,
// C2): one adapter per supported chat website, each describing where to
// find the prompt input and send control, and how to tell a response has
// finished streaming.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/browserbridge/internal/bridgeerr"
	"github.com/dgnsrekt/browserbridge/internal/browserctx"
	"github.com/dgnsrekt/browserbridge/internal/humandelay"
)

// SelectorProfile lists the candidate CSS selectors for one role on a
// page, tried in order until one resolves to a visible, enabled element
// (spec.md §4.3 step 3). Sites that redesign their DOM without warning are
// the reason this is a list and not a single selector.
type SelectorProfile struct {
	PromptInput []string
	SendButton  []string
	RootReady   []string
	// ResponseReady and ResponseBusy drive a site's waitForResponse override
	// (spec.md §4.3 step 8): once enabled, polling considers the response
	// settled when any ResponseReady selector is visible and none of
	// ResponseBusy is.
	ResponseReady []string
	ResponseBusy  []string
}

// Adapter drives one chat website's DOM well enough to submit a prompt and
// read back its rendered response.
type Adapter interface {
	// WebsiteID is the stable identifier used by the external API and the
	// Adapter Registry (spec.md §6 executePrompt's siteId parameter).
	WebsiteID() string
	// MatchesURL reports whether this adapter can drive the given page URL.
	MatchesURL(url string) bool
	// Selectors returns this site's selector profile.
	Selectors() SelectorProfile
	// IsPageReady reports whether the page has progressed far enough for
	// ExecutePrompt to proceed (spec.md §4.3 step 1).
	IsPageReady(ctx context.Context, page browserctx.Page) bool
	// ResponseWaitOverride returns a non-zero override for how long
	// waitForResponse should poll before giving up, or zero to use the
	// Tab Controller's default (spec.md §4.3 step 8).
	ResponseWaitOverride() (enabled bool, pollIntervalMS int, maxWaitMS int)
}

// Execute runs the full human-like submission algorithm from spec.md §4.3
// against page using a's selector profile: wait for DOM readiness, think,
// locate and focus the prompt input, clear it, type the prompt a few
// characters at a time with randomized pacing, pause, locate the send
// control (falling back to Enter), submit, and wait for the response
// (step 8), honoring a's ResponseWaitOverride when it has one.
func Execute(ctx context.Context, a Adapter, page browserctx.Page, prompt string, rootWait, opWait, defaultSettleMS int) error {
	sel := a.Selectors()

	if len(sel.RootReady) > 0 {
		found := false
		for _, root := range sel.RootReady {
			if err := page.WaitSelector(ctx, root, msDuration(rootWait)); err == nil {
				found = true
				break
			}
		}
		if !found {
			return bridgeerr.AdapterFailure(fmt.Sprintf("root selector never appeared for %s", a.WebsiteID()), nil)
		}
	}

	humandelay.Think(ctx)

	inputSel, ok := page.FindVisibleEnabled(ctx, sel.PromptInput, msDuration(opWait))
	if !ok {
		return bridgeerr.InputNotFound("prompt input")
	}

	humandelay.Short(ctx)
	if err := page.Hover(ctx, inputSel); err != nil {
		return bridgeerr.AdapterFailure("hover prompt input", err)
	}
	if err := page.Click(ctx, inputSel); err != nil {
		return bridgeerr.AdapterFailure("click prompt input", err)
	}
	if err := page.Focus(ctx, inputSel); err != nil {
		return bridgeerr.AdapterFailure("focus prompt input", err)
	}
	if err := page.SelectAllAndClear(ctx, inputSel); err != nil {
		return bridgeerr.AdapterFailure("clear prompt input", err)
	}

	if err := typeHumanlike(ctx, page, prompt); err != nil {
		return err
	}

	humandelay.PreSend(ctx)

	if len(sel.SendButton) > 0 {
		if sendSel, ok := page.FindVisibleEnabled(ctx, sel.SendButton, msDuration(opWait)); ok {
			if err := page.Click(ctx, sendSel); err == nil {
				waitForResponse(ctx, a, page, defaultSettleMS)
				return nil
			}
		}
	}
	if err := page.PressEnter(ctx); err != nil {
		return bridgeerr.AdapterFailure("submit via enter fallback", err)
	}
	waitForResponse(ctx, a, page, defaultSettleMS)
	return nil
}

// waitForResponse implements spec.md §4.3 step 8. With no override it sleeps
// the default settle delay. With an override it polls every pollIntervalMS
// for responseSettled, up to maxWaitMS; like the selectors it polls, the
// wait itself expires silently rather than raising.
func waitForResponse(ctx context.Context, a Adapter, page browserctx.Page, defaultSettleMS int) {
	enabled, pollIntervalMS, maxWaitMS := a.ResponseWaitOverride()
	if !enabled || maxWaitMS <= 0 {
		humandelay.Sleep(ctx, msDuration(defaultSettleMS))
		return
	}

	interval := msDuration(pollIntervalMS)
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	sel := a.Selectors()
	deadline := time.Now().Add(msDuration(maxWaitMS))
	for {
		if responseSettled(ctx, page, sel) {
			return
		}
		if !time.Now().Before(deadline) {
			return
		}
		humandelay.Sleep(ctx, interval)
	}
}

// responseSettled reports whether any ResponseReady selector is present and
// none of ResponseBusy is, using a short per-selector check rather than the
// full operation timeout.
func responseSettled(ctx context.Context, page browserctx.Page, sel SelectorProfile) bool {
	const checkTimeout = 200 * time.Millisecond

	if len(sel.ResponseReady) > 0 {
		ready := false
		for _, s := range sel.ResponseReady {
			if err := page.WaitSelector(ctx, s, checkTimeout); err == nil {
				ready = true
				break
			}
		}
		if !ready {
			return false
		}
	}
	for _, s := range sel.ResponseBusy {
		if err := page.WaitSelector(ctx, s, checkTimeout); err == nil {
			return false
		}
	}
	return true
}

// typeHumanlike emits prompt in 1-3 character chunks with randomized
// delays and occasional extra pauses (spec.md §4.3 step 5).
func typeHumanlike(ctx context.Context, page browserctx.Page, prompt string) error {
	runes := []rune(prompt)
	for i := 0; i < len(runes); {
		n := humandelay.ChunkSize()
		if i+n > len(runes) {
			n = len(runes) - i
		}
		for j := 0; j < n; j++ {
			if err := page.TypeChar(ctx, runes[i+j]); err != nil {
				return bridgeerr.AdapterFailure("type character", err)
			}
		}
		i += n
		humandelay.Sleep(ctx, humandelay.CharDelay())
		humandelay.MaybeExtraPause(ctx)
	}
	return nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// HasAnyPrefix reports whether url begins with any of the given prefixes,
// a small helper most MatchesURL implementations in this package share.
func HasAnyPrefix(url string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}
