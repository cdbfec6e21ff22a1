// Package tabs implements the Tab Controller (spec.md §4.2 and §5, C6):
// the single owner of the browser context, its open pages, and the tab
// table the external API operates against.
package tabs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/browserbridge/internal/adapter"
	"github.com/dgnsrekt/browserbridge/internal/bridgeerr"
	"github.com/dgnsrekt/browserbridge/internal/browserctx"
	"github.com/dgnsrekt/browserbridge/internal/pageready"
	"github.com/dgnsrekt/browserbridge/internal/registry"
)

// Tab is one entry in the controller's tab table.
type Tab struct {
	ID         string
	SiteID     string
	Page       browserctx.Page
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Timeouts bundles the operation/navigation/selector timeouts the
// controller applies to every page interaction (spec.md §4.2 "Navigation
// policy in openTab").
type Timeouts struct {
	Operation    time.Duration
	Navigation   time.Duration
	RootSelector time.Duration
	Settle       time.Duration
}

// Controller is the Tab Controller. One instance owns exactly one browser
// context for the lifetime of the bridge process.
type Controller struct {
	factory  browserctx.Factory
	registry *registry.Registry
	timeouts Timeouts

	mu        sync.Mutex
	bctx      browserctx.Context
	dispose   browserctx.Disposer
	contextInit chan struct{} // non-nil while a context creation is in flight
	tabs      map[string]*Tab
	currentID string
}

// New builds a Controller. The browser context itself is created lazily,
// on first use, not here.
func New(factory browserctx.Factory, reg *registry.Registry, timeouts Timeouts) *Controller {
	return &Controller{
		factory:  factory,
		registry: reg,
		timeouts: timeouts,
		tabs:     make(map[string]*Tab),
	}
}

// ensureContext implements spec.md §4.2 steps 1-2: create the browser
// context if one doesn't exist yet (collapsing concurrent callers onto a
// single in-flight creation), and probe it for liveness, recreating it if
// the probe fails.
func (c *Controller) ensureContext(ctx context.Context) error {
	c.mu.Lock()
	if c.bctx != nil {
		bctx := c.bctx
		c.mu.Unlock()
		if _, err := bctx.ListPages(ctx); err == nil {
			return nil
		}
		// Context is dead; fall through to recreate it.
		c.mu.Lock()
		if c.dispose != nil {
			_ = c.dispose(ctx)
		}
		c.bctx = nil
		c.dispose = nil
		c.pruneAllLocked()
	}

	if c.contextInit != nil {
		wait := c.contextInit
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		ready := c.bctx != nil
		c.mu.Unlock()
		if ready {
			return nil
		}
		return bridgeerr.BrowserUnavailable("concurrent context initialization failed", nil)
	}

	init := make(chan struct{})
	c.contextInit = init
	c.mu.Unlock()

	bctx, dispose, err := c.factory.CreateContext(ctx)

	c.mu.Lock()
	c.contextInit = nil
	if err == nil {
		c.bctx = bctx
		c.dispose = dispose
	}
	c.mu.Unlock()
	close(init)

	if err != nil {
		return bridgeerr.BrowserUnavailable("create browser context", err)
	}
	return nil
}

func (c *Controller) pruneAllLocked() {
	c.tabs = make(map[string]*Tab)
	c.currentID = ""
}

func (c *Controller) pruneClosedLocked() {
	for id, t := range c.tabs {
		if t.Page.Closed() {
			delete(c.tabs, id)
			if c.currentID == id {
				c.currentID = ""
			}
		}
	}
}

// ensureTab implements spec.md §4.2's reconciliation algorithm. With a
// non-empty tabID it resolves that specific tab after pruning closed
// entries. With an empty tabID it returns (creating if necessary) the
// controller's current tab: the remembered one if still live, else any
// other live entry, else an adopted orphan page, else a freshly opened
// blank page.
func (c *Controller) ensureTab(ctx context.Context, tabID string) (*Tab, error) {
	if err := c.ensureContext(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pruneClosedLocked()

	if tabID != "" {
		t, ok := c.tabs[tabID]
		c.mu.Unlock()
		if !ok {
			return nil, bridgeerr.TabNotFound(tabID)
		}
		return t, nil
	}

	if c.currentID != "" {
		if t, ok := c.tabs[c.currentID]; ok {
			c.mu.Unlock()
			return t, nil
		}
	}
	for id, t := range c.tabs {
		c.currentID = id
		c.mu.Unlock()
		return t, nil
	}
	bctx := c.bctx
	c.mu.Unlock()

	if adopted, err := c.adoptOrphan(ctx, bctx); err == nil && adopted != nil {
		return adopted, nil
	}

	page, err := bctx.OpenPage(ctx, "about:blank", c.timeouts.Navigation)
	if err != nil {
		return nil, bridgeerr.NavigationFailed("about:blank", err)
	}
	return c.registerTab(page, ""), nil
}

// adoptOrphan scans the context's real pages for one not already in the
// tab table and adopts the first it finds (spec.md §4.2 step 5).
func (c *Controller) adoptOrphan(ctx context.Context, bctx browserctx.Context) (*Tab, error) {
	infos, err := bctx.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	known := make(map[string]bool, len(c.tabs))
	for _, t := range c.tabs {
		known[t.Page.ID()] = true
	}
	c.mu.Unlock()

	for _, info := range infos {
		if known[info.ID] {
			continue
		}
		page, err := bctx.AdoptPage(ctx, info.ID)
		if err != nil {
			continue
		}
		return c.registerTab(page, ""), nil
	}
	return nil, nil
}

func (c *Controller) registerTab(page browserctx.Page, siteID string) *Tab {
	now := time.Now()
	t := &Tab{
		ID:         uuid.NewString(),
		SiteID:     siteID,
		Page:       page,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	c.mu.Lock()
	c.tabs[t.ID] = t
	c.currentID = t.ID
	c.mu.Unlock()
	return t
}

// OpenTab implements the openTab external operation (spec.md §6): it
// always creates a fresh page and navigates it to url, reusing the
// existing browser context.
func (c *Controller) OpenTab(ctx context.Context, url string) (*Tab, error) {
	if err := c.ensureContext(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	bctx := c.bctx
	c.mu.Unlock()

	page, err := bctx.OpenPage(ctx, url, c.timeouts.Navigation)
	if err != nil {
		return nil, bridgeerr.NavigationFailed(url, err)
	}
	if err := page.WaitDOMReady(ctx, c.timeouts.RootSelector); err != nil {
		_ = page.Close(ctx)
		return nil, bridgeerr.NavigationFailed(url, err)
	}
	if pageready.IsChallengePage(ctx, page) {
		// Not fatal: the challenge may resolve itself (or a human watching
		// the real browser window may clear it) before the tab is used.
		_ = pageready.WaitUntilSettled(ctx, page, c.timeouts.RootSelector)
	}

	siteID := ""
	if a, err := c.registry.GetByURL(url); err == nil {
		siteID = a.WebsiteID()
	}
	return c.registerTab(page, siteID), nil
}

// CloseTab implements the closeTab external operation.
func (c *Controller) CloseTab(ctx context.Context, tabID string) error {
	t, err := c.ensureTab(ctx, tabID)
	if err != nil {
		return err
	}
	if t.Page.Closed() {
		c.mu.Lock()
		delete(c.tabs, tabID)
		c.mu.Unlock()
		return bridgeerr.TabClosed(tabID)
	}
	if err := t.Page.Close(ctx); err != nil {
		return bridgeerr.AdapterFailure("close tab", err)
	}
	c.mu.Lock()
	delete(c.tabs, t.ID)
	if c.currentID == t.ID {
		c.currentID = ""
	}
	c.mu.Unlock()
	return nil
}

// ExecutePrompt implements the executePrompt external operation.
func (c *Controller) ExecutePrompt(ctx context.Context, tabID, siteID, prompt string) error {
	if prompt == "" {
		return bridgeerr.Validation("prompt must not be empty")
	}

	t, err := c.ensureTab(ctx, tabID)
	if err != nil {
		return err
	}
	if t.Page.Closed() {
		return bridgeerr.TabClosed(tabID)
	}

	a, err := c.resolveAdapter(siteID, t.Page.URL())
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeouts.Operation)
	defer cancel()

	if err := adapter.Execute(opCtx, a, t.Page, prompt,
		int(c.timeouts.RootSelector/time.Millisecond),
		int(c.timeouts.Operation/time.Millisecond),
		int(c.timeouts.Settle/time.Millisecond)); err != nil {
		return err
	}

	c.mu.Lock()
	t.LastUsedAt = time.Now()
	t.SiteID = a.WebsiteID()
	c.mu.Unlock()

	return nil
}

// resolveAdapter looks up the adapter for an explicit siteID first; if that
// id is unknown it falls back to a URL-based match rather than giving up,
// so a stale or mistyped siteId still resolves when the page itself is
// recognized (spec.md §4.2: AdapterMissing only when no adapter matches
// *and* the URL does not map).
func (c *Controller) resolveAdapter(siteID, pageURL string) (adapter.Adapter, error) {
	if siteID == "" {
		return c.registry.GetByURL(pageURL)
	}
	a, err := c.registry.GetByID(siteID)
	if err == nil {
		return a, nil
	}
	return c.registry.GetByURL(pageURL)
}

// GetPageContent implements the getPageContent external operation.
func (c *Controller) GetPageContent(ctx context.Context, tabID string) (string, error) {
	t, err := c.ensureTab(ctx, tabID)
	if err != nil {
		return "", err
	}
	if t.Page.Closed() {
		return "", bridgeerr.TabClosed(tabID)
	}
	content, err := t.Page.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("get page content: %w", err)
	}
	return content, nil
}

// GetTabs implements the getTabs external operation: a snapshot of the
// tab table with stale (closed) entries pruned first.
func (c *Controller) GetTabs(ctx context.Context) []Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneClosedLocked()
	out := make([]Tab, 0, len(c.tabs))
	for _, t := range c.tabs {
		out = append(out, *t)
	}
	return out
}

// SupportedWebsites implements the supportedWebsites external operation.
func (c *Controller) SupportedWebsites() []string {
	return c.registry.SupportedWebsites()
}

// Shutdown closes every tab and tears down the browser context.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	dispose := c.dispose
	c.bctx = nil
	c.dispose = nil
	c.pruneAllLocked()
	c.mu.Unlock()

	if dispose == nil {
		return nil
	}
	return dispose(ctx)
}
