package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngenohkevin/circulation/internal/config"
	"github.com/ngenohkevin/circulation/internal/database"
)

var errNotPostgres = errors.New("migrations need store.driver=postgres")

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Store.Driver != config.StoreDriverPostgres {
				return errNotPostgres
			}

			db, err := database.New(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if statusOnly {
				current, err := db.SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d\n", current, database.LatestSchemaVersion())
				return nil
			}

			applied, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), schema version %d\n", applied, database.LatestSchemaVersion())
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "print the current schema version without migrating")
	return cmd
}
