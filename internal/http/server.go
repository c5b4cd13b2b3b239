// Package httpapi exposes the quoting and contract workflow over HTTP.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/fleet-pricing/internal/catalog"
	"github.com/example/fleet-pricing/internal/config"
	"github.com/example/fleet-pricing/internal/contracts"
	"github.com/example/fleet-pricing/internal/distance"
	"github.com/example/fleet-pricing/internal/events"
	"github.com/example/fleet-pricing/internal/notify"
	"github.com/example/fleet-pricing/internal/payments"
	"github.com/example/fleet-pricing/internal/pricing"
	"github.com/example/fleet-pricing/internal/reservation"
	"github.com/example/fleet-pricing/internal/storage"
)

type Server struct {
	Assembler *contracts.Assembler
	Ledger    reservation.Ledger
	WSReg     *notify.WSRegistry
	logger    *slog.Logger
	mux       *mux.Router
}

// NewServer wires pre-built collaborators into a routed server. Used directly
// in tests; production wiring goes through NewServerFromConfig.
func NewServer(a *contracts.Assembler, ledger reservation.Ledger, wsreg *notify.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{Assembler: a, Ledger: ledger, WSReg: wsreg, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

// NewServerFromConfig builds the full production stack with fallbacks: memory
// catalog/ledger/store when no Postgres DSN is configured, haversine estimates
// when no routing endpoint is configured, no-ops for absent Kafka and Stripe.
func NewServerFromConfig(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var (
		cat      *catalog.Memory
		rules    catalog.SizeRuleSource
		tiers    pricing.TierSource
		cats     pricing.CategorySource
		settings catalog.SettingsSource
		vehicles catalog.VehicleSource
		ledger   reservation.Ledger
		store    storage.ContractStore
	)
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		pg := catalog.NewPostgres(ps.DB())
		rules, tiers, cats, settings, vehicles = pg, pg, pg, pg, pg
		ledger = reservation.NewPostgresLedger(ps.DB())
		store = ps
	} else {
		cat = catalog.NewMemory()
		rules, tiers, cats, settings, vehicles = cat, cat, cat, cat, cat
		ledger = reservation.NewMemoryLedger()
		store = storage.NewMemoryStore()
		logger.Warn("no PG_DSN configured, using in-memory stores")
	}

	var provider distance.Provider
	if cfg.RoutingEndpoint != "" {
		provider = distance.NewHTTPProvider(cfg.RoutingEndpoint, cfg.RoutingAPIKey)
		if cfg.RedisAddr != "" {
			provider = distance.NewCachedProvider(provider, cfg.RedisAddr, cfg.RedisPassword, cfg.QuoteCacheTTL)
		}
	} else {
		provider = distance.EstimateProvider{}
		logger.Warn("no ROUTING_ENDPOINT configured, using haversine estimates without tolls")
	}

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var gateway payments.DepositGateway
	if payments.StripeConfigured() {
		gateway = payments.NewStripeClient()
	}

	wsreg := notify.NewWSRegistry()
	var notifier notify.Notifier = wsreg
	if cfg.NotifyWebhook != "" {
		notifier = notify.NewWebhookDispatcher(cfg.NotifyWebhook, cfg.NotifyKey, wsreg)
	}

	a := &contracts.Assembler{
		Rules:    rules,
		Settings: settings,
		Vehicles: vehicles,
		Pricer:   &pricing.Engine{Tiers: tiers, Categories: cats},
		Ledger:   ledger,
		Store:    store,
		Distance: provider,
		Gateway:  gateway,
		Events:   publisher,
		Notifier: notifier,
		Logger:   logger,
		Currency: cfg.Currency,
	}
	return NewServer(a, ledger, wsreg, logger), nil
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/orders/quote", s.handleQuote).Methods("POST")
	api.HandleFunc("/orders/{order_id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/contracts", s.handleCreateContract).Methods("POST")
	api.HandleFunc("/contracts/{contract_id}", s.handleGetContract).Methods("GET")
	api.HandleFunc("/contracts/{contract_id}/deposit", s.handleConfirmDeposit).Methods("POST")
	api.HandleFunc("/contracts/{contract_id}/payment", s.handleFullPayment).Methods("POST")
	api.HandleFunc("/contracts/{contract_id}/consume", s.handleConsume).Methods("POST")
	api.HandleFunc("/vehicles/{vehicle_id}/availability", s.handleAvailability).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/orders/{order_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// HTTPServer wraps the router in an http.Server with the configured timeouts.
func (s *Server) HTTPServer(cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      s,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
