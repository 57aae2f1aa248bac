package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/adapters"
	"lorad/internal/config"
	"lorad/internal/httpapi"
	"lorad/internal/inference"
	"lorad/internal/manager"
)

// buildManager wires the adapter store and inference client into a Manager.
func buildManager(cfg config.Config, log zerolog.Logger) (*manager.Manager, error) {
	store, err := adapters.New(cfg.Adapters.Dir, cfg.Adapters.HostDir, cfg.Adapters.PlaceholderMinBytes)
	if err != nil {
		return nil, fmt.Errorf("adapter store: %w", err)
	}
	h := inference.NewHTTPClient(inference.Options{
		BaseURL:        cfg.Inference.BaseURL,
		RequestTimeout: time.Duration(cfg.Inference.RequestTimeoutSeconds) * time.Second,
		ConnectTimeout: time.Duration(cfg.Inference.ConnectTimeoutSeconds) * time.Second,
		Logger:         log.With().Str("component", "inference").Logger(),
	})
	var client inference.Client = h
	if cfg.Inference.CreateMode == "cli" {
		client = inference.NewCLIClient(h, cfg.Inference.CLIBin, cfg.Inference.BaseURL, cfg.Inference.TempDir, log.With().Str("component", "inference").Logger())
	}
	unload := true
	if cfg.Manager.UnloadPrevious != nil {
		unload = *cfg.Manager.UnloadPrevious
	}
	return manager.NewWithConfig(manager.ManagerConfig{
		Store:            store,
		Client:           client,
		DefaultModel:     cfg.Manager.DefaultModel,
		DefaultMaxTokens: cfg.Manager.DefaultMaxTokens,
		UnloadPrevious:   unload,
		Logger:           log,
	}), nil
}

// configureHTTP applies the server section to the HTTP layer.
func configureHTTP(cfg config.Config, log zerolog.Logger) {
	httpapi.SetLogger(log)
	httpapi.SetRequestLogLevel(cfg.Server.RequestLog)
	httpapi.SetMaxBodyBytes(cfg.Server.MaxBodyBytes)
	httpapi.SetPromptTimeoutSeconds(cfg.Server.PromptTimeoutSeconds)
	c := cfg.Server.CORS
	httpapi.SetCORSOptions(c.Enabled, c.Origins, c.Methods, c.Headers)
}

func serve(ctx context.Context, cfg config.Config) error {
	log, closeLog, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	mgr, err := buildManager(cfg, log)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)
	configureHTTP(cfg, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("inference", cfg.Inference.BaseURL).
			Str("create_mode", cfg.Inference.CreateMode).
			Str("adapters_dir", cfg.Adapters.Dir).
			Str("default_model", cfg.Manager.DefaultModel).
			Str("version", version).
			Msg("lorad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
