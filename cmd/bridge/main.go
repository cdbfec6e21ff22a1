package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/browserbridge/internal/adapter"
	"github.com/dgnsrekt/browserbridge/internal/api"
	"github.com/dgnsrekt/browserbridge/internal/browserctx"
	"github.com/dgnsrekt/browserbridge/internal/config"
	"github.com/dgnsrekt/browserbridge/internal/netutil"
	"github.com/dgnsrekt/browserbridge/internal/registry"
	"github.com/dgnsrekt/browserbridge/internal/tabs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("browser-bridge config loaded",
		"bind_addr", cfg.BindAddr,
		"context_mode", cfg.ContextMode,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	factory := buildFactory(cfg)
	reg := registry.New(adapter.BuiltIns()...)

	controller := tabs.New(factory, reg, tabs.Timeouts{
		Operation:    time.Duration(cfg.OperationTimeoutMS) * time.Millisecond,
		Navigation:   time.Duration(cfg.NavigationTimeoutMS) * time.Millisecond,
		RootSelector: time.Duration(cfg.RootSelectorWaitMS) * time.Millisecond,
		Settle:       time.Duration(cfg.SettleDelayMS) * time.Millisecond,
	})

	h := api.NewServer(controller)
	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("browser-bridge listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("browser-bridge server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("browser-bridge http shutdown failed", "error", err)
	}
	if err := controller.Shutdown(ctx); err != nil {
		slog.Error("browser-bridge controller shutdown failed", "error", err)
	}
}

func buildFactory(cfg *config.Config) browserctx.Factory {
	if cfg.ContextMode == "relay" {
		return browserctx.NewRelayFactory(browserctx.RelayConfig{Host: cfg.RelayHost})
	}
	return browserctx.NewPersistentFactory(browserctx.PersistentConfig{
		CDPAddress:         "127.0.0.1",
		CDPPort:            9333,
		ProfileDirOverride: cfg.ProfileDirOverride,
		WindowSize:         cfg.WindowSize,
	})
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
