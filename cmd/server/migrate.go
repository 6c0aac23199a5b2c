package main

import (
	"log/slog"

	"github.com/JonMunkholm/catalog-import/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the products and stocks tables or collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d := newDeps(a.cfg)
			defer d.Close()

			switch a.cfg.Store.Driver {
			case "postgres":
				pool, err := d.postgres(ctx)
				if err != nil {
					return err
				}
				if err := store.Migrate(ctx, pool); err != nil {
					return err
				}
			case "mongo":
				m, err := d.mongo(ctx)
				if err != nil {
					return err
				}
				if err := m.EnsureCollections(ctx); err != nil {
					return err
				}
			default:
				slog.Info("nothing to migrate", "driver", a.cfg.Store.Driver)
				return nil
			}
			slog.Info("migration complete", "driver", a.cfg.Store.Driver)
			return nil
		},
	}
}
