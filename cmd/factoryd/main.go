// Command factoryd serves the stablecoin factory HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CedrosPay/stablecoin-factory/pkg/factory"
)

var version = "dev"

var (
	configPath      string
	envFile         string
	shutdownTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "factoryd",
	Short:         "Bond-collateralized stablecoin factory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Real environment variables win over the dotenv file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API until SIGINT or SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := factory.LoadConfig(configPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "program_id: %s\n", cfg.Program.ProgramID)
		fmt.Fprintf(out, "storage:    %s\n", cfg.Storage.Backend)
		fmt.Fprintf(out, "oracle:     %s\n", cfg.Oracle.Source)
		fmt.Fprintf(out, "faucet:     %t\n", cfg.Faucet.Enabled)
		fmt.Fprintln(out, "config ok")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", os.Getenv("FACTORY_CONFIG"), "path to YAML config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config")
	rootCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")

	rootCmd.AddCommand(serveCmd, checkConfigCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "factoryd: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := factory.LoadConfig(configPath)
	if err != nil {
		return err
	}

	app, err := factory.NewApp(ctx, cfg, factory.WithVersion(version))
	if err != nil {
		return err
	}
	defer app.Close()

	srv := app.Server()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("address", cfg.Server.Address).Msg("server.listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info().Msg("server.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.Logger.Info().Msg("server.stopped")
	return nil
}
