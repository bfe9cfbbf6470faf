package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/kartei/internal/api"
	"github.com/darmiel/kartei/internal/store"
)

const shutdownTimeout = 10 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Kartei server",
	Long: `Starts the HTTP API, the template registry and the background tasks.
Student records can be seeded from a YAML file with --records, which is
mostly useful together with the in-memory database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		recordsPath, _ := cmd.Flags().GetString("records")

		cfg, err := f.LoadServerConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		rt, err := f.BuildRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close runtime")
			}
		}()

		if recordsPath != "" {
			records, err := store.LoadRecords(recordsPath)
			if err != nil {
				return err
			}
			if err := records.Apply(cmd.Context(), rt.Records); err != nil {
				return fmt.Errorf("seeding records: %w", err)
			}
			log.Info().
				Int("courses", len(records.Courses)).
				Int("enrollments", len(records.Enrollments)).
				Int("profiles", len(records.Profiles)).
				Msg("Seeded student records")
		}

		srv := api.NewServer(rt.Issuance, rt.Guard, rt.Tasks, rt.Auditor, rt.Metrics)
		server := &http.Server{
			Addr:              addr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		rt.Tasks.Start()

		serveErr := make(chan error, 1)
		go func() {
			log.Info().Msgf("Starting server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case <-quit:
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("server crashed: %w", err)
			}
		}
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := rt.Tasks.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("background tasks did not stop in time")
		}
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	serveCmd.Flags().String("records", "", "YAML file with courses, enrollments and profiles to load on startup")
}
