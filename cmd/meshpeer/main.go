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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/meshcall/internal/adapters/device"
	"github.com/dkeye/meshcall/internal/adapters/peer"
	"github.com/dkeye/meshcall/internal/adapters/sink"
	"github.com/dkeye/meshcall/internal/app/session"
	"github.com/dkeye/meshcall/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("meshpeer failed")
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = config.SetupLogging("info")

	fs := config.Flags("meshpeer")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	if err := config.SetupLogging(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Msg("falling back to info level")
	}
	if err := cfg.ValidatePeer(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	renderer := sink.NewRenderer(sink.NewMetrics(reg))

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := peer.Open(dialCtx, peer.Options{
		URL:        cfg.Peer.SignalURL,
		ID:         cfg.Peer.ID,
		ICEServers: cfg.Peer.ICEServers,
		PingPeriod: cfg.PingPeriod / 2,
	})
	dialCancel()
	if err != nil {
		return fmt.Errorf("open signaling: %w", err)
	}

	sess, err := session.New(session.Options{
		Peer:        client,
		Devices:     device.NewSynthetic(device.Options{ToneHz: cfg.Peer.ToneHz, Deny: cfg.Peer.DenyDevices}),
		Sinks:       renderer,
		Presence:    renderer,
		Gain:        cfg.Peer.BroadcastGain,
		EventBuffer: cfg.Peer.EventBuffer,
		Metrics:     session.NewMetrics(reg),
	})
	if err != nil {
		_ = client.Close()
		return err
	}
	log.Info().Str("id", client.ID().String()).Msg("meshpeer ready, type help for commands")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error {
		if err := sess.CheckPreviousPermission(gctx); err != nil {
			log.Info().Err(err).Msg("no previous permission")
		}
		return readCommands(gctx, sess, os.Stdin, os.Stdout)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-sess.Events():
				fmt.Fprintln(os.Stdout, "*", describe(ev))
			}
		}
	})
	if addr := cfg.Peer.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", addr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info().Msg("meshpeer exited")
	return err
}
