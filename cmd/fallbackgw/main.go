// Command fallbackgw serves the fallback gateway over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	llmfallback "github.com/ferro-labs/llm-fallback"
	"github.com/ferro-labs/llm-fallback/internal/logging"
	"github.com/ferro-labs/llm-fallback/internal/requestlog"
	"github.com/ferro-labs/llm-fallback/internal/version"
)

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log := logging.Logger

	// Config file if GATEWAY_CONFIG is set, otherwise the environment.
	var cfg llmfallback.Config
	if cfgPath := os.Getenv("GATEWAY_CONFIG"); cfgPath != "" {
		loaded, err := llmfallback.LoadConfig(cfgPath)
		if err != nil {
			log.Error("failed to load config", "path", cfgPath, "error", err.Error())
			os.Exit(1)
		}
		cfg = *loaded
		log.Info("config loaded", "path", cfgPath, "providers", len(cfg.Providers))
	} else {
		cfg = llmfallback.ConfigFromEnv(os.Getenv)
		if err := llmfallback.ValidateConfig(cfg); err != nil {
			log.Error("invalid environment config", "error", err.Error())
			os.Exit(1)
		}
		log.Info("no GATEWAY_CONFIG set; using environment", "providers", len(cfg.Providers))
	}

	gw, err := llmfallback.New(cfg)
	if err != nil {
		log.Error("failed to create gateway", "error", err.Error())
		os.Exit(1)
	}

	writer, closeLog, err := requestlog.Open(os.Getenv("REQUEST_LOG_DRIVER"), os.Getenv("REQUEST_LOG_DSN"))
	if err != nil {
		log.Error("failed to open request log", "error", err.Error())
		os.Exit(1)
	}
	gw.AddHook(func(ctx context.Context, subject string, data map[string]interface{}) {
		if err := writer.Write(ctx, requestlog.FromEvent(subject, data)); err != nil {
			log.Warn("request log write failed", "error", err.Error())
		}
	})

	// A missing provider set is reported, not fatal: /health shows it and
	// generate calls fail fast until the config is fixed.
	if err := gw.Init(context.Background()); err != nil {
		log.Error("gateway has no usable providers", "error", err.Error())
	}

	debug, _ := strconv.ParseBool(os.Getenv("GATEWAY_DEBUG"))
	r := newRouter(gw, serverOptions{debug: debug, logs: writer})

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err.Error())
		}
	}()

	log.Info("fallback gateway listening",
		"version", version.Short(),
		"addr", addr,
		"active_provider", gw.ActiveProviderName(),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Error("server error", "error", err.Error())
		_ = gw.Close()
		_ = closeLog()
		os.Exit(1) //nolint:gocritic
	}

	if err := gw.Close(); err != nil {
		log.Warn("gateway close", "error", err.Error())
	}
	if err := closeLog(); err != nil {
		log.Warn("request log close", "error", err.Error())
	}
	log.Info("server stopped")
}
