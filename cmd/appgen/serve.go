package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/appgen/internal/chat"
	"github.com/suPer8Hu/appgen/internal/db"
	"github.com/suPer8Hu/appgen/internal/httpapi"
	"github.com/suPer8Hu/appgen/internal/httpapi/handlers"
	"github.com/suPer8Hu/appgen/internal/store/rabbitmq"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := buildDeps(cfg)
		defer d.Close()

		if autoMigrate {
			if err := db.Migrate(d.DB, chat.Models()...); err != nil {
				return err
			}
		}

		var pub handlers.JobPublisher
		rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			slog.Warn("rabbitmq unavailable, async completions disabled", "err", err)
		} else {
			defer rabbit.Close()
			pub = rabbit
		}

		r := httpapi.NewRouter(handlers.NewHandler(d.Svc, pub), cfg)
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("http server listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "run migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
