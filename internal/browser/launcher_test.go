package browser

import (
	"context"
	"net"
	"strconv"
	"testing"
)

func TestCDPURL(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9333})
	want := "http://127.0.0.1:9333"
	if got := l.CDPURL(); got != want {
		t.Errorf("CDPURL() = %q, want %q", got, want)
	}
}

func TestRunningFalseBeforeLaunch(t *testing.T) {
	l := NewLauncher(Config{})
	if l.Running() {
		t.Error("Running() = true before Launch was ever called")
	}
}

func TestStopOnNeverLaunchedLauncherIsNoop(t *testing.T) {
	l := NewLauncher(Config{})
	l.Stop() // must not panic
}

func TestNewLauncherAppliesDefaults(t *testing.T) {
	l := NewLauncher(Config{})
	if l.cfg.WindowSize != "1280,900" {
		t.Errorf("default WindowSize = %q", l.cfg.WindowSize)
	}
	if l.cfg.StartURL != "about:blank" {
		t.Errorf("default StartURL = %q", l.cfg.StartURL)
	}
}

// TestLaunchSkipsWhenPortAlreadyInUse exercises the "reuse an already
// running browser" path without needing a real Chrome binary: Launch
// should return nil immediately once it sees the CDP port already
// listening.
func TestLaunchSkipsWhenPortAlreadyInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi: %v", err)
	}

	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: port})
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Running() {
		t.Error("Running() = true, want false when an existing port was reused instead of spawning")
	}
}
