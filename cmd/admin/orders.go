package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kevin07696/newebpay-service/internal/adapters/database"
	"github.com/kevin07696/newebpay-service/internal/app"
	"github.com/kevin07696/newebpay-service/internal/config"
	domainports "github.com/kevin07696/newebpay-service/internal/domain/ports"
)

func ordersCmd() *cobra.Command {
	var refundable, asJSON bool

	cmd := &cobra.Command{
		Use:   "orders [merchantOrderNo]",
		Short: "List stored orders, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					order, err := a.Service.GetOrder(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(order)
				}

				orders, err := a.Service.ListOrders(ctx, domainports.OrderFilter{RefundableOnly: refundable})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(orders)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ORDER\tTRADE NO\tAMOUNT\tSTATUS\tPAID AT")
				for _, o := range orders {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						o.MerchantOrderNo, o.TradeNo, o.Amount, o.Status, o.PayTime.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVarP(&refundable, "refundable", "r", false, "Only paid orders with a trade number")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Query every paid order once and record refunds the gateway has started",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(10*time.Minute, func(ctx context.Context, a *app.App) error {
				result, err := a.Service.ReconcileSweep(ctx)
				if result != nil {
					if perr := printJSON(result); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL order schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "postgres" {
				return fmt.Errorf("ORDER_STORE is %q; migrate only applies to postgres", cfg.Store.Driver)
			}

			ctx, cancel := commandContext(time.Minute)
			defer cancel()

			db, err := database.NewPostgreSQLAdapter(ctx, database.DefaultPostgreSQLConfig(cfg.Store.DatabaseURL), newLogger())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return err
			}

			names, err := database.SchemaFiles()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
