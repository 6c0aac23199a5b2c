// Command server runs the catalog import pipeline: the HTTP intake that
// parses uploaded files into queued units, and the worker that commits them.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/catalog-import/internal/config"
	"github.com/JonMunkholm/catalog-import/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// app carries state shared by all subcommands once the root has loaded it.
type app struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "catalog-import",
		Short: "Import product catalogs from uploaded CSV files",
		Long: `catalog-import turns CSV files uploaded to object storage into products.

Each valid row becomes a queued unit of work. Workers commit every unit as a
product and its stock record in one transaction and announce the new product.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "env file to load before reading the environment")

	root.AddCommand(
		newServeCmd(a),
		newWorkerCmd(a),
		newParseCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// load reads the env file, then the configuration, then sets up logging.
// Values in the env file win over the process environment.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Overload(a.envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		slog.Debug("no env file found, using environment variables", "path", a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}
