package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/you/websession/internal/app"
	"github.com/you/websession/internal/config"
	"github.com/you/websession/internal/infrastructure/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "websession",
		Short:         "Browser session gateway in front of the authentication API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "YAML config file path")

	cmd.AddCommand(
		serveCmd(&configPath),
		checkStorageCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "websession %s\n", app.Version)
			},
		},
	)
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, cfg, log)
		},
	}
}

// checkStorageCmd verifies the configured backend is reachable and can hold an encrypted token pair
func checkStorageCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-storage",
		Short: "Verify connectivity of the configured storage backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			fmt.Fprintf(out, "Checking %s storage backend\n", cfg.StorageBackend)
			container, err := app.NewContainer(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer container.Close()
			fmt.Fprintln(out, "✓ connection and migrations ok")

			for name, check := range container.HealthChecks() {
				if err := check(ctx); err != nil {
					return fmt.Errorf("%s health check failed: %w", name, err)
				}
				fmt.Fprintf(out, "✓ %s reachable\n", name)
			}

			if err := container.ProbeStorage(ctx); err != nil {
				return fmt.Errorf("storage probe failed: %w", err)
			}
			fmt.Fprintln(out, "✓ encrypted token round trip ok")
			return nil
		},
	}
}
