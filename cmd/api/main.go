package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/punchamoorthee/pursledger/internal/api"
	"github.com/punchamoorthee/pursledger/internal/bundle"
	"github.com/punchamoorthee/pursledger/internal/config"
	"github.com/punchamoorthee/pursledger/internal/dataapi"
	"github.com/punchamoorthee/pursledger/internal/service"
	"github.com/punchamoorthee/pursledger/internal/store"
	"github.com/punchamoorthee/pursledger/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}
	log := telemetry.NewLogger(cfg.Env, cfg.LogLevel, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer shutdownTracing(context.Background())

	// Initialize Layers
	var (
		txStore service.TxStore
		entries api.EntryReader
	)
	switch cfg.Backend {
	case config.BackendDataAPI:
		client, err := dataapi.NewFromConfig(ctx, cfg.Region, cfg.Target, log)
		if err != nil {
			log.Fatal().Err(err).Msg("create data api client")
		}
		txStore = client
	default:
		pg, err := store.Open(ctx, cfg.DBSource, log)
		if err != nil {
			log.Fatal().Err(err).Msg("unable to connect to database")
		}
		defer pg.Close()
		go pg.RunReaper(ctx, cfg.TxIdleTimeout)
		txStore, entries = pg, pg
	}

	orch := bundle.New(txStore,
		bundle.WithTarget(cfg.Target),
		bundle.WithPolicy(cfg.Policy),
		bundle.WithLogger(log),
		bundle.WithTracerProvider(tp),
	)
	svc := service.NewPurchaseService(txStore, orch, log)
	handler := api.NewHandler(svc, entries, log, api.WithTracerProvider(tp))

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("backend", cfg.Backend).
		Str("policy", cfg.Policy.String()).
		Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
