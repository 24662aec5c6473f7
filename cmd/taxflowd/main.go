package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"log/slog"

	"github.com/acctax/taxflow/internal/blobstore"
	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/export"
	"github.com/acctax/taxflow/internal/extract"
	"github.com/acctax/taxflow/internal/pipeline"
	"github.com/acctax/taxflow/internal/repository"
	"github.com/acctax/taxflow/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("taxflowd exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("stopped.")
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, logger, cfg.Database); err != nil {
		return err
	}

	clients := repository.NewClientRepository(pool, logger)
	docs := repository.NewDocumentRepository(pool, logger)
	fields := repository.NewExtractedFieldRepository(pool, logger)
	audit := repository.NewAuditRepository(pool, logger)
	dashboard := repository.NewDashboardRepository(pool, logger)

	issuer, err := blobstore.NewSASIssuer(cfg.Storage.AccountName, cfg.Storage.AccountKey, logger)
	if err != nil {
		return err
	}
	extractor := extract.NewDocIntelClient(cfg.DocIntel, nil, logger)

	processor := pipeline.NewProcessor(logger, docs, audit, issuer, extractor, pipeline.Options{
		SASClockSkew:   cfg.Storage.SASClockSkew,
		SASValidity:    cfg.Storage.SASValidity,
		ExtractTimeout: cfg.DocIntel.Timeout,
	})

	zlog, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = zlog.Sync() }()

	exporter := export.NewService(docs, fields, logger)
	svc := server.NewService(clients, docs, fields, audit, dashboard, exporter, cfg.Storage.Container, zlog)

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           svc.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("api serving", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api serve: %w", err)
		}
	}()

	go func() {
		errCh <- serveTriggers(ctx, cfg.Server.EventsAddr, processor, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		if err != nil {
			_ = shutdownHTTP(httpSrv)
			return err
		}
	}

	return shutdownHTTP(httpSrv)
}

func shutdownHTTP(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// serveTriggers runs the CloudEvents receiver feeding blob-created events
// into the lifecycle engine. It blocks until ctx is cancelled.
func serveTriggers(ctx context.Context, addr string, processor *pipeline.Processor, logger *slog.Logger) error {
	port, err := portOf(addr)
	if err != nil {
		return err
	}

	c, err := cloudevents.NewClientHTTP(cloudevents.WithPort(port))
	if err != nil {
		return fmt.Errorf("create events client: %w", err)
	}

	logger.Info("trigger receiver serving", "addr", addr)
	return c.StartReceiver(ctx, func(ctx context.Context, e cloudevents.Event) error {
		var n blobstore.Notification
		if err := json.Unmarshal(e.Data(), &n); err != nil {
			logger.Error("trigger event unmarshal failed", "event_id", e.ID(), "error", err)
			return fmt.Errorf("unmarshal event data: %w", err)
		}
		// Returning the error marks the delivery failed; redelivery and
		// backoff are the event infrastructure's concern.
		return processor.HandleBlobCreated(ctx, n)
	})
}

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse events addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse events addr %q: %w", addr, err)
	}
	return port, nil
}
