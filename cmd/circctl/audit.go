package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ngenohkevin/circulation/internal/app"
)

var errViolations = errors.New("invariant violations found")

func newAuditCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check cross-record invariants and print a report",
		Long: "Audit reads every copy, open transaction, unpaid fine and pending reservation\n" +
			"and reports records that disagree. Exits non-zero when violations are found.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := app.New(cmd.Context(), opts.cfg, opts.logger, app.Options{})
			if err != nil {
				return err
			}
			defer engine.Close()

			report, err := engine.Auditor.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("audit failed: %w", err)
			}

			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("%w: %d", errViolations, len(report.Violations))
			}
			return nil
		},
	}
}

func newExpireCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-reservations",
		Short: "Expire pending reservations past their expiry date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := app.New(cmd.Context(), opts.cfg, opts.logger, app.Options{})
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Reservations.ExpireOverdue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}
