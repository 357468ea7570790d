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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callhub/internal/adapters/events"
	router "github.com/dkeye/callhub/internal/adapters/http"
	wssignal "github.com/dkeye/callhub/internal/adapters/signal"
	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/app/sfu"
	"github.com/dkeye/callhub/internal/config"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(reg)

	var sink core.EventSink = events.NopSink{}
	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL, "callhub")
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("nats unavailable, events disabled")
		} else {
			defer nc.Drain()
			sink = events.NewNatsSink(nc, cfg.NatsSubjectPrefix)
		}
	}

	relays := sfu.NewManager(ctx, cfg.ICEServers)
	o := orch.New(orch.Settings{
		HeartbeatInterval: cfg.HeartbeatInterval,
		StaleTimeout:      cfg.StaleTimeout,
		PresenceThreshold: cfg.PresenceThreshold,
		CallMaxAge:        cfg.CallMaxAge,
		SweepInterval:     cfg.SweepInterval,
	},
		orch.WithMedia(relays),
		orch.WithEvents(sink),
		orch.WithMetrics(metrics),
		orch.WithPolicy(app.PolicyByName(cfg.BackpressurePolicy)),
	)
	relays.OnOffer = func(uid domain.UserID, offer webrtc.SessionDescription) { o.PushMediaOffer(uid, offer) }
	relays.OnCandidate = func(uid domain.UserID, c webrtc.ICECandidateInit) { o.PushMediaCandidate(uid, c) }

	ctrl := wssignal.NewSignalWSController(o, wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		SendBuffer: cfg.SendBuffer,
		CallLimit:  cfg.CallRateLimit,
		CallWindow: cfg.CallRateWindow,
	})

	sched, err := orch.NewScheduler(o, cfg.SweepInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep scheduler")
	}
	if err := sched.Also(func() { ctrl.Limiter().Forget() }); err != nil {
		log.Fatal().Err(err).Msg("limiter cleanup")
	}
	sched.Start()
	defer sched.Stop()

	r := router.SetupRouter(ctx, cfg, o, ctrl, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("callhub server started")
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
