// Package app wires the stock worker daemon: configuration, storage, the
// consolidation consumer, and the health endpoint.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pagecraft/commerce/internal/domain/order"
	"github.com/pagecraft/commerce/internal/domain/stock"
	"github.com/pagecraft/commerce/internal/kafka"
	"github.com/pagecraft/commerce/internal/postgres"
	"github.com/pagecraft/commerce/internal/worker"
)

// Run creates all dependencies, starts the consolidation consumer and the
// health endpoint, and handles graceful shutdown. It is the single wiring
// point for the worker.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.Strings("brokers", cfg.Brokers))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories and services.
	orderRepo := postgres.NewOrderRepository(pool)
	stockRepo := postgres.NewStockRepository(pool)
	stockService := stock.NewService(stockRepo)

	consolidator := worker.NewConsolidator(orderRepo, stockService, lg.Named("consolidator"))
	consumer := kafka.NewConsumer(cfg.Brokers, order.ConsolidateQueue, cfg.GroupID, lg.Named("consumer"))
	defer consumer.Close()

	// Health endpoints: liveness is unconditional, readiness pings postgres.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(mux, "stock-worker"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := consumer.Run(gctx, consolidator.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
