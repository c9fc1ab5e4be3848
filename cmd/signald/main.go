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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/meshcall/internal/adapters/http"
	"github.com/dkeye/meshcall/internal/app/broker"
	"github.com/dkeye/meshcall/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logging is set up twice: early so config.Load can log, then at the
	// configured level.
	_ = config.SetupLogging("info")

	fs := config.Flags("signald")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := config.SetupLogging(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Msg("falling back to info level")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b := broker.New(broker.Options{
		OfferLimit:    cfg.OfferRate.Limit,
		OfferInterval: cfg.OfferRate.Interval,
		Policy:        broker.SimplePolicy{},
		Metrics:       broker.NewMetrics(reg),
	})

	r := router.SetupRouter(ctx, cfg, b, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signald started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
