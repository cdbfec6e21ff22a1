package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	clearBridgeEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:8765" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.ContextMode != "persistent" {
		t.Errorf("ContextMode = %q, want persistent", cfg.ContextMode)
	}
	if !cfg.PortAutoFallback {
		t.Error("PortAutoFallback = false, want true by default")
	}
	if len(cfg.PortCandidates) != 3 {
		t.Errorf("PortCandidates = %v, want 3 defaults", cfg.PortCandidates)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_BIND_ADDR", "0.0.0.0:9000")
	t.Setenv("BRIDGE_CONTEXT_MODE", "RELAY")
	t.Setenv("BRIDGE_BIND_AUTO_FALLBACK", "false")
	t.Setenv("BRIDGE_OPERATION_TIMEOUT_MS", "1234")
	t.Setenv("BRIDGE_BIND_CANDIDATES", "a:1, b:2 ,c:3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:9000" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.ContextMode != "relay" {
		t.Errorf("ContextMode = %q, want lowercased relay", cfg.ContextMode)
	}
	if cfg.PortAutoFallback {
		t.Error("PortAutoFallback = true, want false")
	}
	if cfg.OperationTimeoutMS != 1234 {
		t.Errorf("OperationTimeoutMS = %d, want 1234", cfg.OperationTimeoutMS)
	}
	want := []string{"a:1", "b:2", "c:3"}
	if len(cfg.PortCandidates) != len(want) {
		t.Fatalf("PortCandidates = %v, want %v", cfg.PortCandidates, want)
	}
	for i := range want {
		if cfg.PortCandidates[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, cfg.PortCandidates[i], want[i])
		}
	}
}

func TestGetEnvIntOrDefaultIgnoresUnparseable(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("BRIDGE_ROOT_SELECTOR_WAIT_MS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootSelectorWaitMS != 10000 {
		t.Errorf("RootSelectorWaitMS = %d, want default 10000 on unparseable env", cfg.RootSelectorWaitMS)
	}
}

func clearBridgeEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"BRIDGE_BIND_ADDR", "BRIDGE_BIND_CANDIDATES", "BRIDGE_BIND_AUTO_FALLBACK",
		"BRIDGE_CONTEXT_MODE", "BRIDGE_PROFILE_DIR", "BRIDGE_WINDOW_SIZE",
		"BRIDGE_RELAY_HOST", "BRIDGE_OPERATION_TIMEOUT_MS", "BRIDGE_NAVIGATION_TIMEOUT_MS",
		"BRIDGE_ROOT_SELECTOR_WAIT_MS", "BRIDGE_SETTLE_DELAY_MS", "BRIDGE_LOG_LEVEL", "BRIDGE_LOG_FILE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
