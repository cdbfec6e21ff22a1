package browserctx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/browserbridge/internal/bridgeerr"
	"github.com/dgnsrekt/browserbridge/internal/browser"
	"github.com/dgnsrekt/browserbridge/internal/profiledir"
)

// profileLockRetries and profileLockBackoff bound the persistent factory's
// launch retries (spec.md §4.5, persistent variant). Every launch failure
// is retried, not only a profile directory still locked by a prior browser
// process.
const (
	profileLockRetries = 5
	profileLockBackoff = time.Second
)

// PersistentConfig configures the persistent Context Factory variant: a
// locally launched Chrome/Chromium process with its own user-data dir.
type PersistentConfig struct {
	CDPAddress        string
	CDPPort           int
	ProfileDirOverride string
	WindowSize        string
}

// PersistentFactory launches (or attaches to an already-running) local
// browser process per CreateContext call.
type PersistentFactory struct {
	cfg PersistentConfig
}

// NewPersistentFactory builds a Factory backed by a local browser process.
func NewPersistentFactory(cfg PersistentConfig) *PersistentFactory {
	return &PersistentFactory{cfg: cfg}
}

// CreateContext resolves the profile directory, launches the browser
// (retrying any launch failure up to profileLockRetries times,
// profileLockBackoff apart), and attaches a chromedp RemoteAllocator to it.
func (f *PersistentFactory) CreateContext(ctx context.Context) (Context, Disposer, error) {
	profileDir, err := profiledir.Resolve(f.cfg.ProfileDirOverride)
	if err != nil {
		return nil, nil, bridgeerr.BrowserUnavailable("resolve profile dir", err)
	}

	launcher := browser.NewLauncher(browser.Config{
		CDPAddress: f.cfg.CDPAddress,
		CDPPort:    f.cfg.CDPPort,
		ProfileDir: profileDir,
		WindowSize: f.cfg.WindowSize,
	})

	var launchErr error
	for attempt := 1; attempt <= profileLockRetries; attempt++ {
		launchErr = launcher.Launch(ctx)
		if launchErr == nil {
			break
		}
		slog.Warn("persistent context launch attempt failed",
			"attempt", attempt, "error", launchErr)
		select {
		case <-ctx.Done():
			return nil, nil, bridgeerr.BrowserUnavailable("launch canceled", ctx.Err())
		case <-time.After(profileLockBackoff):
		}
	}
	if launchErr != nil {
		return nil, nil, bridgeerr.BrowserUnavailable(
			fmt.Sprintf("launch browser after %d attempts", profileLockRetries), launchErr)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, launcher.CDPURL())
	cc := newChromeContext(allocCtx)

	disposer := func(ctx context.Context) error {
		_ = cc.Close(ctx)
		allocCancel()
		if launcher.Running() {
			launcher.Stop()
		}
		return nil
	}
	return cc, disposer, nil
}
