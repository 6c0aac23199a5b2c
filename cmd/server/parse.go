package main

import (
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/spf13/cobra"
)

func newParseCmd(a *app) *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "parse <key>...",
		Short: "Parse uploaded objects without waiting for an S3 event",
		Long: `parse re-drives files still in the upload namespace, for example after
an event was lost or a parse was aborted. Each key is parsed in order and the
first failure stops the command.`,
		Example: "  catalog-import parse uploaded/spring.csv",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if bucket == "" {
				bucket = a.cfg.Storage.Bucket
			}

			d := newDeps(a.cfg)
			if err := d.build(ctx, d.withObjects, d.withQueue); err != nil {
				return err
			}
			defer d.Close()

			parser := d.parser()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, key := range args {
				result, err := parser.Parse(ctx, core.ObjectRef{Bucket: bucket, Key: key})
				if err != nil {
					if core.IsUserFacing(err) {
						return fmt.Errorf("%s: %s: %w", key, core.FormatUserError(err), err)
					}
					return fmt.Errorf("%s: %w", key, err)
				}
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket holding the objects (default S3_BUCKET)")
	return cmd
}
