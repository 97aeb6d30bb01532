package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"finitefield.org/templates-listing/internal/config"
	"finitefield.org/templates-listing/internal/content"
	"finitefield.org/templates-listing/internal/httpserver"
	"finitefield.org/templates-listing/internal/listing"
	"finitefield.org/templates-listing/internal/media"
	"finitefield.org/templates-listing/internal/observability"
	"finitefield.org/templates-listing/internal/page"
	"finitefield.org/templates-listing/internal/sheet"
)

func main() {
	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("templates")

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Relative data-source and image links resolve against this server.
	selfURL := localBaseURL(cfg.Server.Addr)

	sheetClient := sheet.NewClient(
		sheet.WithTimeout(cfg.Sheet.Timeout),
		sheet.WithBaseURL(firstNonEmpty(cfg.Sheet.BaseURL, selfURL)),
		sheet.WithLogger(logger.Named("sheet")),
	)

	optimizer := media.NewOptimizer(
		media.WithBaseURL(firstNonEmpty(cfg.Media.BaseURL, selfURL)),
		media.WithAllowedHosts(cfg.Media.AllowedHosts...),
		media.WithMaxBytes(cfg.Media.MaxBytes),
		media.WithCacheEntries(cfg.Media.CacheEntries),
		media.WithLogger(logger.Named("media")),
	)

	pages := page.NewStore(
		page.WithTTL(cfg.Listing.PageTTL),
		page.WithMaxPages(cfg.Listing.MaxPages),
		page.WithMaxPagesPerSession(cfg.Listing.MaxPagesPerSession),
		page.WithLogger(logger.Named("pages")),
	)

	server := httpserver.New(httpserver.Config{
		Address:      cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Logger:       logger,
		Content:      content.NewLoader(os.DirFS(cfg.Content.Dir), content.WithLogger(logger.Named("content"))),
		Pages:        pages,
		Sheet:        sheetClient,
		Media:        optimizer,
		ListingOptions: []listing.Option{
			listing.WithPageSize(cfg.Listing.PageSize),
			listing.WithDebounce(cfg.Listing.FlipDebounce),
		},
		InitialWait:       cfg.Listing.InitialWait,
		PollInterval:      cfg.Listing.PollInterval,
		SessionSigningKey: cfg.Session.SigningKey,
		SessionSecure:     cfg.Session.Secure,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pages.Run(ctx, cfg.Listing.CleanupInterval)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("templates listing server starting", zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
