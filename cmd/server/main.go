package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/voicegate/internal/adapters/http"
	"github.com/dkeye/voicegate/internal/adapters/ws"
	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/app/sfu"
	"github.com/dkeye/voicegate/internal/config"
	"github.com/dkeye/voicegate/internal/metrics"
	"github.com/dkeye/voicegate/internal/token"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	identity, err := sfu.NewIdentity(cfg.ServerName, cfg.ServerToken, cfg.SFUHost)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid voice identity")
	}

	collector := metrics.NewPrometheusCollector()
	channel, err := sfu.NewChannel(identity, ws.NewDialer(cfg.ReadLimit), sfu.Options{
		ConnectTimeout:       cfg.ConnectTimeout,
		BaseReconnectDelay:   cfg.ReconnectBaseDelay,
		MaxReconnectDelay:    cfg.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		KeepAliveInterval:    cfg.KeepAliveInterval,
		WriteTimeout:         sfu.DefaultOptions().WriteTimeout,
	}, collector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create control channel")
	}

	tokens, err := token.NewIssuer(identity.ServerID, []byte(identity.ServerToken), cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token issuer")
	}
	broker := app.NewBroker(channel, tokens, collector)

	// The first attempt only logs; the channel keeps retrying on its own.
	if err := channel.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("url", identity.ControlURL()).Msg("initial SFU connect failed")
	}

	r := router.SetupRouter(ctx, cfg, broker, channel, collector.Handler())
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("server_id", identity.ServerID).Msg("Voice gateway started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	channel.Disconnect()
	log.Info().Msg("Server exited gracefully")
}
