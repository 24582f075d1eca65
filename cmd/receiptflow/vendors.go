package main

import (
	"fmt"

	"receiptflow/internal/abr"
	"receiptflow/internal/repository"
	"receiptflow/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newVendorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Manage the ABN vendor cache",
	}

	var limit int
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh cached vendors older than the cache window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			vendors := service.NewVendorService(
				repository.NewVendorRepository(a.db, a.logger),
				abr.NewClient(&a.cfg.ABR, a.logger),
				a.cfg.ABR.Timeout,
				a.logger,
			)

			n, err := vendors.RefreshStale(cmd.Context(), limit)
			for _, e := range multierr.Errors(err) {
				a.logger.Warn("Vendor refresh failed", zap.Error(e))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d vendors, %d failed\n", n, len(multierr.Errors(err)))
			return err
		},
	}
	refresh.Flags().IntVar(&limit, "limit", 500, "maximum number of vendors to refresh")

	cmd.AddCommand(refresh)
	return cmd
}
