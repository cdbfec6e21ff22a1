package browserctx

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/browserbridge/internal/bridgeerr"
	"github.com/dgnsrekt/browserbridge/internal/relaycdp"
)

// RelayConfig configures the relay-backed Context Factory variant: the
// bridge itself runs the CDP Relay Server (C5) and a browser extension in
// some already-running browser dials into it, so there is no local process
// to launch here (spec.md §4.5, relay-backed variant; §4.1 relay design).
type RelayConfig struct {
	Host string
}

// RelayFactory starts one CDP Relay Server per CreateContext call on a
// freshly allocated loopback port, then connects a chromedp RemoteAllocator
// back to that same server as the "CDP client" peer. This resolves the
// cyclic-looking dependency: the relay is both the thing chromedp dials and
// the thing the browser extension dials, so it must exist before either
// side connects and must pick its own port before its own URL can be known.
type RelayFactory struct {
	cfg RelayConfig
}

// NewRelayFactory builds a Factory backed by the CDP Relay Server.
func NewRelayFactory(cfg RelayConfig) *RelayFactory {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	return &RelayFactory{cfg: cfg}
}

func (f *RelayFactory) CreateContext(ctx context.Context) (Context, Disposer, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(f.cfg.Host, "0"))
	if err != nil {
		return nil, nil, bridgeerr.BrowserUnavailable("allocate relay port", err)
	}

	server := relaycdp.NewServer()
	go func() {
		// Serve returns nil on graceful Close.
		if serveErr := server.Serve(ln); serveErr != nil {
			slog.Warn("relay server stopped", "error", serveErr)
		}
	}()

	wsURL := fmt.Sprintf("ws://%s/cdp", ln.Addr().String())
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, wsURL)
	cc := newChromeContext(allocCtx)

	disposer := func(ctx context.Context) error {
		_ = cc.Close(ctx)
		allocCancel()
		return server.Close()
	}
	return cc, disposer, nil
}
