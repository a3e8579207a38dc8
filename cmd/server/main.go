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
	"github.com/spf13/cobra"

	router "github.com/okteva/conclave/internal/adapters/http"
	"github.com/okteva/conclave/internal/app"
	"github.com/okteva/conclave/internal/config"
	"github.com/okteva/conclave/internal/core"
	"github.com/okteva/conclave/internal/crdt/deltalog"
	"github.com/okteva/conclave/internal/media"
	"github.com/okteva/conclave/internal/media/pionengine"
)

func main() {
	root := &cobra.Command{
		Use:           "conclave",
		Short:         "Real-time meeting orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine := pionengine.New(pionengine.Config{
		ICEServers: cfg.ICEServers,
		MinPort:    cfg.RTCMinPort,
		MaxPort:    cfg.RTCMaxPort,
		Workers:    cfg.Workers,
	})
	// Worker death is not locally recoverable: live rooms cannot be
	// redistributed, so the process goes down with the worker.
	pool, err := media.NewWorkerPool(engine, cfg.Workers, func(err error) {
		log.Fatal().Err(err).Msg("media worker died, exiting")
	})
	if err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}

	store := core.NewSnapshotStore(cfg.DocsDir)
	rooms := core.NewRegistry(pool, deltalog.New(), store)
	orch := &app.Orchestrator{
		Rooms:    rooms,
		Sessions: app.NewSessionRegistry(),
	}

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("conclave server started")
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
	rooms.Shutdown()
	pool.Close()
	log.Info().Msg("Server exited gracefully")
	return nil
}
