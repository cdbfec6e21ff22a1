package browserctx

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// chromePage is the chromedp-backed Page implementation shared by both
// Context Factory variants: the only difference between persistent and
// relay-backed contexts is how the parent allocator context was built.
type chromePage struct {
	ctx       context.Context
	cancel    context.CancelFunc
	targetID  string
	closed    atomic.Bool
	lastURL   atomic.Value
	lastTitle atomic.Value
}

func newChromePage(parent context.Context, targetID string) *chromePage {
	tabCtx, cancel := chromedp.NewContext(parent, chromedp.WithTargetID(target.ID(targetID)))
	p := &chromePage{ctx: tabCtx, cancel: cancel, targetID: targetID}
	p.lastURL.Store("")
	p.lastTitle.Store("")
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *inspector.EventDetached:
			p.closed.Store(true)
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				p.lastURL.Store(e.Frame.URL)
			}
		}
	})
	return p
}

func (p *chromePage) ID() string { return p.targetID }

func (p *chromePage) URL() string {
	if v, ok := p.lastURL.Load().(string); ok {
		return v
	}
	return ""
}

func (p *chromePage) Title() string {
	if v, ok := p.lastTitle.Load().(string); ok {
		return v
	}
	return ""
}

func (p *chromePage) Closed() bool { return p.closed.Load() }

// withTimeout derives a cancellable context from the page's own tab context
// (not from the caller's ctx, whose cancellation must never reach past a
// single CDP call and tear down the underlying chromedp target).
func (p *chromePage) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(p.ctx)
	}
	return context.WithTimeout(p.ctx, timeout)
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := p.withTimeout(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	p.lastURL.Store(url)
	var title string
	_ = chromedp.Run(runCtx, chromedp.Title(&title))
	if title != "" {
		p.lastTitle.Store(title)
	}
	return nil
}

func (p *chromePage) WaitDOMReady(ctx context.Context, timeout time.Duration) error {
	runCtx, cancel := p.withTimeout(ctx, timeout)
	defer cancel()
	var state string
	return chromedp.Run(runCtx, chromedp.Evaluate(`document.readyState`, &state))
}

// WaitNetworkIdle polls performance.getEntriesByType("resource") for
// in-flight requests settling, since chromedp has no built-in idle wait
// comparable to Playwright's networkidle.
func (p *chromePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	runCtx, cancel := p.withTimeout(ctx, timeout)
	defer cancel()

	const script = `
		(() => {
			const nav = performance.getEntriesByType('navigation')[0];
			if (nav && nav.loadEventEnd === 0) return false;
			const recent = performance.getEntriesByType('resource')
				.filter(r => r.responseEnd === 0 || (performance.now() - r.responseEnd) < 400);
			return recent.length === 0;
		})()
	`
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		var idle bool
		if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &idle)); err != nil {
			return fmt.Errorf("network idle check: %w", err)
		}
		if idle {
			return nil
		}
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case <-ticker.C:
		}
	}
}

func (p *chromePage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := p.withTimeout(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait selector %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) FindVisibleEnabled(ctx context.Context, selectors []string, timeout time.Duration) (string, bool) {
	for _, sel := range selectors {
		runCtx, cancel := p.withTimeout(ctx, timeout)
		err := chromedp.Run(runCtx,
			chromedp.WaitVisible(sel, chromedp.ByQuery),
			chromedp.WaitEnabled(sel, chromedp.ByQuery),
		)
		cancel()
		if err == nil {
			return sel, true
		}
	}
	return "", false
}

func (p *chromePage) Hover(ctx context.Context, selector string) error {
	runCtx, cancel := p.withTimeout(ctx, 0)
	defer cancel()
	return chromedp.Run(runCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.ActionFunc(func(c context.Context) error {
			var nodes []*cdp.Node
			if err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery).Do(c); err != nil {
				return err
			}
			if len(nodes) == 0 {
				return fmt.Errorf("hover: no node for %q", selector)
			}
			quads, err := dom.GetContentQuads().WithBackendNodeID(nodes[0].BackendNodeID).Do(c)
			if err != nil || len(quads) == 0 {
				return fmt.Errorf("hover: content quads for %q: %w", selector, err)
			}
			cx, cy := quadCenter(quads)
			return input.DispatchMouseEvent(input.MouseMoved, cx, cy).Do(c)
		}),
	)
}

// quadCenter averages a CDP content-quad (4 points, 8 floats) into a center.
func quadCenter(quads []dom.Quad) (float64, float64) {
	q := quads[0]
	var sx, sy float64
	for i := 0; i < len(q); i += 2 {
		sx += q[i]
		sy += q[i+1]
	}
	return sx / 4, sy / 4
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	runCtx, cancel := p.withTimeout(ctx, 0)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Focus(ctx context.Context, selector string) error {
	runCtx, cancel := p.withTimeout(ctx, 0)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Focus(selector, chromedp.ByQuery))
}

// SelectAllAndClear selects the element's existing content and deletes it
// via JS, since contenteditable chat inputs vary too much in how they
// respond to a raw Ctrl+A/Backspace key sequence to rely on one.
func (p *chromePage) SelectAllAndClear(ctx context.Context, selector string) error {
	runCtx, cancel := p.withTimeout(ctx, 0)
	defer cancel()
	script := fmt.Sprintf(`
		(() => {
			const el = document.querySelector(%q);
			if (!el) return;
			el.focus();
			if ('value' in el) {
				el.value = '';
				el.dispatchEvent(new Event('input', {bubbles: true}));
			} else {
				el.textContent = '';
				el.dispatchEvent(new InputEvent('input', {bubbles: true}));
			}
		})()
	`, selector)
	return chromedp.Run(runCtx, chromedp.Evaluate(script, nil))
}

func (p *chromePage) TypeChar(ctx context.Context, ch rune) error {
	runCtx, cancel := p.withTimeout(ctx, 0)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(string(ch)))
}

func (p *chromePage) PressEnter(ctx context.Context) error {
	runCtx, cancel := p.withTimeout(ctx, 0)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent("\r"))
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	runCtx, cancel := p.withTimeout(ctx, 0)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

func (p *chromePage) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	_ = chromedp.Run(p.ctx, chromedp.ActionFunc(func(c context.Context) error {
		return chromedp.Cancel(c)
	}))
	p.cancel()
	return nil
}
