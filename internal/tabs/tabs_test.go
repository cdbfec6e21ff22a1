package tabs

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/browserbridge/internal/adapter"
	"github.com/dgnsrekt/browserbridge/internal/bridgeerr"
	"github.com/dgnsrekt/browserbridge/internal/browserctx"
	"github.com/dgnsrekt/browserbridge/internal/registry"
)

type fakePage struct {
	id      string
	url     string
	title   string
	closed  bool
	content string
}

func (p *fakePage) ID() string    { return p.id }
func (p *fakePage) URL() string   { return p.url }
func (p *fakePage) Title() string { return p.title }
func (p *fakePage) Closed() bool  { return p.closed }

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.url = url
	return nil
}
func (p *fakePage) WaitDOMReady(ctx context.Context, timeout time.Duration) error   { return nil }
func (p *fakePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error { return nil }
func (p *fakePage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}
func (p *fakePage) FindVisibleEnabled(ctx context.Context, selectors []string, timeout time.Duration) (string, bool) {
	if len(selectors) == 0 {
		return "", false
	}
	return selectors[0], true
}
func (p *fakePage) Hover(ctx context.Context, selector string) error             { return nil }
func (p *fakePage) Click(ctx context.Context, selector string) error            { return nil }
func (p *fakePage) Focus(ctx context.Context, selector string) error            { return nil }
func (p *fakePage) SelectAllAndClear(ctx context.Context, selector string) error { return nil }
func (p *fakePage) TypeChar(ctx context.Context, ch rune) error                 { return nil }
func (p *fakePage) PressEnter(ctx context.Context) error                       { return nil }
func (p *fakePage) Content(ctx context.Context) (string, error)                { return p.content, nil }
func (p *fakePage) Close(ctx context.Context) error {
	p.closed = true
	return nil
}

type fakeContext struct {
	nextID    int
	pages     map[string]*fakePage
	openErr   error
	listErr   error
	closed    bool
}

func newFakeContext() *fakeContext {
	return &fakeContext{pages: make(map[string]*fakePage)}
}

func (c *fakeContext) ListPages(ctx context.Context) ([]browserctx.PageInfo, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]browserctx.PageInfo, 0, len(c.pages))
	for _, p := range c.pages {
		if p.closed {
			continue
		}
		out = append(out, browserctx.PageInfo{ID: p.id, URL: p.url, Title: p.title})
	}
	return out, nil
}

func (c *fakeContext) OpenPage(ctx context.Context, url string, navTimeout time.Duration) (browserctx.Page, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.nextID++
	p := &fakePage{id: "page-" + strconv.Itoa(c.nextID), url: url}
	c.pages[p.id] = p
	return p, nil
}

func (c *fakeContext) AdoptPage(ctx context.Context, id string) (browserctx.Page, error) {
	if p, ok := c.pages[id]; ok {
		return p, nil
	}
	return nil, errors.New("no such page")
}

func (c *fakeContext) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

type fakeFactory struct {
	createCalls atomic.Int32
	ctx         *fakeContext
	createErr   error
	disposed    atomic.Bool
}

func (f *fakeFactory) CreateContext(ctx context.Context) (browserctx.Context, browserctx.Disposer, error) {
	f.createCalls.Add(1)
	if f.createErr != nil {
		return nil, nil, f.createErr
	}
	return f.ctx, func(ctx context.Context) error {
		f.disposed.Store(true)
		return nil
	}, nil
}

type stubAdapter struct {
	id       string
	prefixes []string
}

func (s *stubAdapter) WebsiteID() string { return s.id }
func (s *stubAdapter) MatchesURL(url string) bool {
	return adapter.HasAnyPrefix(url, s.prefixes...)
}
func (s *stubAdapter) Selectors() adapter.SelectorProfile {
	return adapter.SelectorProfile{PromptInput: []string{"#prompt"}}
}
func (s *stubAdapter) IsPageReady(ctx context.Context, page browserctx.Page) bool { return true }
func (s *stubAdapter) ResponseWaitOverride() (bool, int, int)                     { return false, 0, 0 }

func testTimeouts() Timeouts {
	return Timeouts{
		Operation:    time.Second,
		Navigation:   time.Second,
		RootSelector: time.Second,
		Settle:       0,
	}
}

func TestOpenTabRegistersAndInfersSiteID(t *testing.T) {
	reg := registry.New(&stubAdapter{id: "example", prefixes: []string{"https://example.com"}})
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab, err := c.OpenTab(context.Background(), "https://example.com/chat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tab.SiteID != "example" {
		t.Errorf("SiteID = %q, want example", tab.SiteID)
	}
	if tab.ID == "" {
		t.Error("expected a non-empty tab id")
	}
}

func TestOpenTabCreatesContextOnlyOnce(t *testing.T) {
	reg := registry.New()
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	if _, err := c.OpenTab(context.Background(), "https://a.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.OpenTab(context.Background(), "https://b.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := factory.createCalls.Load(); calls != 1 {
		t.Errorf("factory.CreateContext called %d times, want 1", calls)
	}
}

func TestOpenTabPropagatesNavigationFailure(t *testing.T) {
	reg := registry.New()
	fc := newFakeContext()
	fc.openErr = errors.New("navigation refused")
	factory := &fakeFactory{ctx: fc}
	c := New(factory, reg, testTimeouts())

	_, err := c.OpenTab(context.Background(), "https://a.com")
	var coded *bridgeerr.CodedError
	if !errors.As(err, &coded) || coded.Code != bridgeerr.CodeNavigationFailed {
		t.Fatalf("expected NavigationFailed, got %v", err)
	}
}

func TestCloseTabRemovesFromTable(t *testing.T) {
	reg := registry.New()
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab, err := c.OpenTab(context.Background(), "https://a.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.CloseTab(context.Background(), tab.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.ensureTab(context.Background(), tab.ID); err == nil {
		t.Error("expected tab to be gone after close")
	}
}

func TestCloseTabNotFound(t *testing.T) {
	reg := registry.New()
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	err := c.CloseTab(context.Background(), "nope")
	var coded *bridgeerr.CodedError
	if !errors.As(err, &coded) || coded.Code != bridgeerr.CodeTabNotFound {
		t.Fatalf("expected TabNotFound, got %v", err)
	}
}

func TestExecutePromptInfersAdapterFromURL(t *testing.T) {
	reg := registry.New(&stubAdapter{id: "example", prefixes: []string{"https://example.com"}})
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab, err := c.OpenTab(context.Background(), "https://example.com/chat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.ExecutePrompt(context.Background(), tab.ID, "", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecutePromptFallsBackToURLWhenSiteIDUnknown(t *testing.T) {
	reg := registry.New(&stubAdapter{id: "deepseek", prefixes: []string{"https://deepseek.com"}})
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab, err := c.OpenTab(context.Background(), "https://deepseek.com/chat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.ExecutePrompt(context.Background(), tab.ID, "unknown-id", "hello"); err != nil {
		t.Fatalf("expected fallback to URL lookup to succeed, got %v", err)
	}
	if tab.SiteID != "deepseek" {
		t.Errorf("tab.SiteID = %q, want deepseek after fallback", tab.SiteID)
	}
}

func TestExecutePromptUnknownSiteIDAndUnmappedURLReturnsAdapterMissing(t *testing.T) {
	reg := registry.New(&stubAdapter{id: "deepseek", prefixes: []string{"https://deepseek.com"}})
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab, err := c.OpenTab(context.Background(), "https://unknown.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = c.ExecutePrompt(context.Background(), tab.ID, "unknown-id", "hello")
	var coded *bridgeerr.CodedError
	if !errors.As(err, &coded) || coded.Code != bridgeerr.CodeAdapterMissing {
		t.Fatalf("expected AdapterMissing, got %v", err)
	}
}

func TestExecutePromptRejectsEmptyPrompt(t *testing.T) {
	reg := registry.New(&stubAdapter{id: "example", prefixes: []string{"https://example.com"}})
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab, err := c.OpenTab(context.Background(), "https://example.com/chat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = c.ExecutePrompt(context.Background(), tab.ID, "", "")
	var coded *bridgeerr.CodedError
	if !errors.As(err, &coded) || coded.Code != bridgeerr.CodeValidation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestExecutePromptMissingAdapter(t *testing.T) {
	reg := registry.New()
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab, err := c.OpenTab(context.Background(), "https://unknown.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = c.ExecutePrompt(context.Background(), tab.ID, "", "hello")
	var coded *bridgeerr.CodedError
	if !errors.As(err, &coded) || coded.Code != bridgeerr.CodeAdapterMissing {
		t.Fatalf("expected AdapterMissing, got %v", err)
	}
}

func TestGetTabsPrunesClosed(t *testing.T) {
	reg := registry.New()
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	tab1, _ := c.OpenTab(context.Background(), "https://a.com")
	_, _ = c.OpenTab(context.Background(), "https://b.com")

	if err := c.CloseTab(context.Background(), tab1.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := c.GetTabs(context.Background())
	if len(got) != 1 {
		t.Fatalf("GetTabs = %d tabs, want 1 after closing one of two", len(got))
	}
}

func TestShutdownDisposesContext(t *testing.T) {
	reg := registry.New()
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	if _, err := c.OpenTab(context.Background(), "https://a.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !factory.disposed.Load() {
		t.Error("expected disposer to have been called")
	}
	if got := c.GetTabs(context.Background()); len(got) != 0 {
		t.Errorf("expected empty tab table after shutdown, got %d", len(got))
	}
}

func TestSupportedWebsitesDelegatesToRegistry(t *testing.T) {
	reg := registry.New(&stubAdapter{id: "chatgpt"}, &stubAdapter{id: "claude"})
	factory := &fakeFactory{ctx: newFakeContext()}
	c := New(factory, reg, testTimeouts())

	got := c.SupportedWebsites()
	if len(got) != 2 || got[0] != "chatgpt" || got[1] != "claude" {
		t.Errorf("SupportedWebsites = %v", got)
	}
}
