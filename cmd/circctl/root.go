package main

import (
	"io"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/ngenohkevin/circulation/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type rootOptions struct {
	verbose bool
	logger  *slog.Logger
	cfg     *config.Config
}

func newRootCmd(loadConfig func() (*config.Config, error), stdin io.Reader) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "circctl",
		Short:         "Maintenance tool for the circulation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			if cmd.Annotations["config"] == "none" {
				return nil
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log connection and query details")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newAuditCmd(opts),
		newExpireCmd(opts),
		newHashPasswordCmd(stdin),
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
