// The sweeper expires contracts whose deposit deadline lapsed, freeing the
// vehicle reservations they held. It runs as a separate long-lived process
// next to the API server.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/fleet-pricing/internal/config"
	"github.com/example/fleet-pricing/internal/contracts"
	"github.com/example/fleet-pricing/internal/events"
	"github.com/example/fleet-pricing/internal/logging"
	"github.com/example/fleet-pricing/internal/payments"
	"github.com/example/fleet-pricing/internal/reservation"
	"github.com/example/fleet-pricing/internal/storage"
)

var (
	sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_sweeps_total",
		Help: "Total sweep iterations executed",
	})
	sweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_sweep_errors_total",
		Help: "Total sweep iterations that failed",
	})
	contractsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_contracts_expired_total",
		Help: "Total contracts expired by the sweeper",
	})
)

func init() {
	prometheus.MustRegister(sweepsTotal, sweepErrors, contractsExpired)
}

// expirer is the slice of the contract workflow the sweep loop needs.
type expirer interface {
	ExpireOverdueDeposits(ctx context.Context, limit int) (int, error)
	ExpireOverdueFullPayments(ctx context.Context, limit int) (int, error)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadSweeperConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	if cfg.PGDSN == "" {
		logger.Error("PG_DSN is required, the sweeper only makes sense against shared storage")
		os.Exit(1)
	}
	store, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	ledger := reservation.NewPostgresLedger(store.DB())

	var publisher events.Publisher
	var producer *events.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = producer
	}

	var gateway payments.DepositGateway
	if payments.StripeConfigured() {
		gateway = payments.NewStripeClient()
	}

	a := &contracts.Assembler{
		Ledger:  ledger,
		Store:   store,
		Gateway: gateway,
		Events:  publisher,
		Logger:  logger,
	}

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := store.DB().PingContext(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
	}()

	logger.Info("sweeper running", "interval", cfg.Interval, "batch_limit", cfg.BatchLimit)
	runSweepLoop(ctx, a, cfg.Interval, cfg.BatchLimit, logger.With("component", "sweeper"))
	logger.Info("bye")
}

// runSweepLoop sweeps once per tick until the context is cancelled. Each tick
// covers both deadline kinds: unpaid deposits and overdue full payments.
// Errors are counted and logged but never stop the loop; a transient database
// outage should not take the sweeper down with it.
func runSweepLoop(ctx context.Context, e expirer, interval time.Duration, limit int, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	steps := []struct {
		name string
		run  func(context.Context, int) (int, error)
	}{
		{"deposit_deadline", e.ExpireOverdueDeposits},
		{"full_payment_due", e.ExpireOverdueFullPayments},
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepsTotal.Inc()
			for _, step := range steps {
				n, err := step.run(ctx, limit)
				if err != nil {
					sweepErrors.Inc()
					logger.Error("sweep failed", "step", step.name, "error", err)
					continue
				}
				if n > 0 {
					contractsExpired.Add(float64(n))
					logger.Info("contracts expired", "step", step.name, "count", n)
				}
			}
		}
	}
}
