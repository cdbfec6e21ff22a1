// Package browserctx implements the Context Factory (spec.md §4.5, C4): an
// opaque producer of a browser context plus a disposer, with two concrete
// variants (persistent and relay-backed) that the Tab Controller treats
// uniformly through the Context/Page interfaces below.
package browserctx

import (
	"context"
	"time"
)

// Page is the capability surface the Tab Controller (C6) and Site Adapters
// (C2) need from a single browser tab. Implementations wrap a chromedp
// target context; the interface exists so controller/adapter code never
// imports chromedp directly.
type Page interface {
	// ID is the underlying CDP target id, used only for adoption bookkeeping.
	ID() string
	URL() string
	Title() string
	// Closed reports whether the underlying page has been detected closed.
	// Once true it never reverts to false.
	Closed() bool

	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitDOMReady(ctx context.Context, timeout time.Duration) error
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error

	// FindVisibleEnabled walks selectors in order and returns the first one
	// whose element is both visible and enabled (spec.md §4.3 step 3).
	FindVisibleEnabled(ctx context.Context, selectors []string, timeout time.Duration) (string, bool)

	Hover(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Focus(ctx context.Context, selector string) error
	// SelectAllAndClear selects all existing content in the element and
	// deletes it (spec.md §4.3 step 4).
	SelectAllAndClear(ctx context.Context, selector string) error
	// TypeChar emits a single character as a trusted keyboard event.
	TypeChar(ctx context.Context, ch rune) error
	PressEnter(ctx context.Context) error

	Content(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// PageInfo is a lightweight snapshot of a real page's identity, used for
// liveness probing and adoption (spec.md §4.2 steps 2 and 5).
type PageInfo struct {
	ID    string
	URL   string
	Title string
}

// Context is a live browser context: a profile, its cookies, and its open
// pages. It is owned exclusively by the Tab Controller.
type Context interface {
	// ListPages returns a snapshot of currently open real pages. An error
	// signals the context itself is dead (spec.md §4.2 step 2).
	ListPages(ctx context.Context) ([]PageInfo, error)
	// OpenPage creates a brand-new page and navigates it to url.
	OpenPage(ctx context.Context, url string, navTimeout time.Duration) (Page, error)
	// AdoptPage returns a handle for an already-open target reported by
	// ListPages, without navigating it.
	AdoptPage(ctx context.Context, id string) (Page, error)
	// Close tears down every page and the context itself.
	Close(ctx context.Context) error
}

// Disposer releases everything a Factory allocated for one CreateContext
// call (spec.md §4.5).
type Disposer func(ctx context.Context) error

// Factory is the capability the Tab Controller demands: produce a context
// and a matching disposer. The controller never inspects which concrete
// variant it received.
type Factory interface {
	CreateContext(ctx context.Context) (Context, Disposer, error)
}
