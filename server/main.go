package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/assistant"
	"github.com/andy-wilson/thermostat_dashboard/dashboard"
	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/publish"
	"github.com/andy-wilson/thermostat_dashboard/storage"
)

// newLogger returns a text logger writing to stdout and, when path is set,
// appending to the log file. The returned func closes the file.
func newLogger(stdout io.Writer, path, level string) (*slog.Logger, func() error, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	writers := []io.Writer{stdout}
	closeFn := func() error { return nil }
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open log file")
		}
		writers = append(writers, file)
		closeFn = file.Close
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), closeFn, nil
}

// openStorage returns the configured backend, initialized.
func openStorage(cfg Config, logger *slog.Logger) (storage.Backend, error) {
	var store storage.Backend
	switch cfg.Storage {
	case storageSQLite:
		store = storage.NewSQLiteStorage(cfg.DBPath, logger)
	default:
		store = storage.NewJSONStorage(cfg.DataFile, logger)
	}
	if err := store.Initialize(); err != nil {
		return nil, errors.Wrapf(err, "failed to initialize %s storage", cfg.Storage)
	}
	return store, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard-server: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, opts, err := parseConfig(args, os.Stderr)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(os.Stdout, cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.migrate {
		return storage.RunMigration(ctx, cfg.DataFile, cfg.DBPath, opts.verify, logger)
	}

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return errors.Wrap(err, "failed to load timezone")
	}

	m := NewMetrics()
	dash := dashboard.NewService(store, metrics.Rate(cfg.EnergyRate), loc, logger.With("component", "dashboard"))
	client := assistant.NewClient(assistant.Config{
		BaseURL:           cfg.LLMBaseURL,
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		RequestsPerSecond: cfg.LLMRPS,
		Timeout:           cfg.LLMTimeout,
	}, logger.With("component", "assistant"))
	ai := assistant.NewService(dash, observedModel{Model: client, metrics: m}, logger.With("component", "assistant"))

	server := NewServer(cfg, dash, ai, store, m, logger)

	go server.cleanupVisitors(ctx, time.Minute, 10*time.Minute)

	if cfg.MQTTBroker != "" {
		pub, err := publish.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			// The dashboard still serves without the broker.
			logger.Error("MQTT publishing disabled", "broker", cfg.MQTTBroker, "error", err)
		} else {
			defer pub.Close()
			ticker := time.NewTicker(cfg.MQTTInterval)
			defer ticker.Stop()
			logger.Info("publishing health snapshots", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic, "interval", cfg.MQTTInterval)
			go publish.Loop(ctx, observedHealth{dash: dash, metrics: m}, pub, ticker.C, logger.With("component", "publish"))
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Language model answers can take most of a minute.
		WriteTimeout: cfg.LLMTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting thermostat dashboard server",
			"port", cfg.Port,
			"storage", cfg.Storage,
			"rate", cfg.EnergyRate,
			"timezone", loc.String(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "HTTP server error")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown failed")
	}

	logger.Info("server shutdown complete")
	return nil
}

// cleanupVisitors periodically drops idle rate limiter entries.
func (s *Server) cleanupVisitors(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.cleanup(maxIdle); n > 0 {
				s.logger.Debug("rate limiter entries expired", "count", n)
			}
		}
	}
}
