package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/chunkgate/internal/api"
	"github.com/dgallion1/chunkgate/internal/checkpoint"
	"github.com/dgallion1/chunkgate/internal/pipeline"
	"github.com/dgallion1/chunkgate/internal/validate"
)

func newServeCmd() *cobra.Command {
	var sharedBudget int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			log := newLogger(cfg)
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := checkpoint.Open(ctx, cfg.CheckpointURL, checkpoint.Options{PathstoreAPIKey: cfg.PathstoreAPIKey})
			if err != nil {
				return fmt.Errorf("open checkpoint store: %w", err)
			}
			defer store.Close()

			// Without a shared budget every job is capped by its own parameters.
			var budget *validate.Budget
			if sharedBudget > 0 {
				budget = validate.NewBudget(sharedBudget, log)
			}

			orch, err := pipeline.NewOrchestrator(cfg, store, budget, nil, log)
			if err != nil {
				return err
			}
			orch.Start(context.WithoutCancel(ctx))

			httpServer := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      api.NewServer(orch, log, cfg),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			// Graceful shutdown.
			go func() {
				<-ctx.Done()
				log.Info("shutting down...")

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				httpServer.Shutdown(shutdownCtx)
			}()

			log.Info("starting chunkgate", "port", cfg.Port, "checkpoints", cfg.CheckpointURL, "workers", cfg.WorkerCount)
			err = httpServer.ListenAndServe()
			if err == http.ErrServerClosed {
				<-ctx.Done()
				err = nil
			}
			// Running jobs stop at their next batch boundary with a valid checkpoint.
			orch.Stop()
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sharedBudget, "llm-budget", 0, "judge call budget shared by all jobs (0 = per job)")
	return cmd
}
