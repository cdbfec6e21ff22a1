package browserctx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// chromeContext implements Context on top of one chromedp "browser" context
// (an ExecAllocator or RemoteAllocator parent, as set up by the persistent
// or relay-backed factory). It is shared by both Context Factory variants;
// only how allocCtx was constructed differs between them.
type chromeContext struct {
	allocCtx context.Context
	mu       sync.Mutex
	pages    map[string]*chromePage
}

func newChromeContext(allocCtx context.Context) *chromeContext {
	return &chromeContext{allocCtx: allocCtx, pages: make(map[string]*chromePage)}
}

func (c *chromeContext) ListPages(ctx context.Context) ([]PageInfo, error) {
	targets, err := chromedp.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	out := make([]PageInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		out = append(out, PageInfo{ID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	return out, nil
}

func (c *chromeContext) OpenPage(ctx context.Context, url string, navTimeout time.Duration) (Page, error) {
	createCtx, cancel := context.WithTimeout(c.allocCtx, navTimeout)
	defer cancel()

	var targetID target.ID
	tabCtx, tabCancel := chromedp.NewContext(createCtx)
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		targetID = chromedp.FromContext(ctx).Target.TargetID
		return nil
	}))
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: allocate target: %w", err)
	}
	tabCancel()

	p := newChromePage(c.allocCtx, string(targetID))
	if err := p.Navigate(ctx, url, navTimeout); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}

	c.mu.Lock()
	c.pages[p.ID()] = p
	c.mu.Unlock()
	return p, nil
}

func (c *chromeContext) AdoptPage(ctx context.Context, id string) (Page, error) {
	c.mu.Lock()
	if existing, ok := c.pages[id]; ok && !existing.Closed() {
		c.mu.Unlock()
		return existing, nil
	}
	c.mu.Unlock()

	p := newChromePage(c.allocCtx, id)
	var url, title string
	_ = chromedp.Run(p.ctx, chromedp.Location(&url))
	_ = chromedp.Run(p.ctx, chromedp.Title(&title))
	if url != "" {
		p.lastURL.Store(url)
	}
	if title != "" {
		p.lastTitle.Store(title)
	}

	c.mu.Lock()
	c.pages[id] = p
	c.mu.Unlock()
	return p, nil
}

func (c *chromeContext) Close(ctx context.Context) error {
	c.mu.Lock()
	pages := make([]*chromePage, 0, len(c.pages))
	for _, p := range c.pages {
		pages = append(pages, p)
	}
	c.pages = make(map[string]*chromePage)
	c.mu.Unlock()

	for _, p := range pages {
		_ = p.Close(ctx)
	}
	return nil
}
