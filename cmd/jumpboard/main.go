package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/jumpboard/internal/broadcast"
	"github.com/mcdev12/jumpboard/internal/config"
	"github.com/mcdev12/jumpboard/internal/gateway"
	"github.com/mcdev12/jumpboard/internal/session"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("identity", cfg.Identity()).
		Str("group", cfg.Group).
		Str("nats_url", cfg.NATSURL).
		Str("listen", cfg.ListenAddr).
		Msg("starting jumpboard")

	channel, err := broadcast.ConnectNATS(cfg.NATSURL, cfg.Group, cfg.Identity())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to group channel")
	}
	defer channel.Close()

	clock := clockwork.NewRealClock()
	sess := session.New(cfg.Session(), clock, channel)
	if err := channel.Subscribe(sess.HandleMessage); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to group channel")
	}

	manager := gateway.NewManager(gateway.DefaultConfig())
	svc := gateway.NewService(sess, manager, clock, time.Second)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: svc.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sess.Run(ctx); err != nil {
			log.Error().Err(err).Msg("session loop exited")
		}
	}()
	go func() {
		if err := svc.Run(ctx); err != nil {
			log.Error().Err(err).Msg("gateway loop exited")
		}
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
