package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kevin07696/newebpay-service/internal/app"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
)

const tradeCommandTimeout = 2 * time.Minute

type tradeFlags struct {
	merchantOrderNo string
	tradeNo         string
	amount          string
}

func (f *tradeFlags) bind(cmd *cobra.Command, amountRequired bool) {
	cmd.Flags().StringVarP(&f.merchantOrderNo, "order", "o", "", "Merchant order number")
	cmd.Flags().StringVarP(&f.tradeNo, "trade-no", "t", "", "Gateway trade number")
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "Amount in whole units")
	_ = cmd.MarkFlagRequired("order")
	if amountRequired {
		_ = cmd.MarkFlagRequired("amount")
	}
}

func (f *tradeFlags) request() (*ports.TradeRequest, error) {
	req := &ports.TradeRequest{MerchantOrderNo: f.merchantOrderNo, TradeNo: f.tradeNo}
	if f.amount != "" {
		amount, err := decimal.NewFromString(f.amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", f.amount, err)
		}
		req.Amount = amount
	}
	return req, nil
}

type operation func(ctx context.Context, a *app.App, req *ports.TradeRequest) (any, error)

func tradeCmd(use, short string, amountRequired bool, op operation, extra func(*cobra.Command, *tradeFlags) func(*ports.TradeRequest)) *cobra.Command {
	var flags tradeFlags
	var apply func(*ports.TradeRequest)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			if apply != nil {
				apply(req)
			}
			return withApp(tradeCommandTimeout, func(ctx context.Context, a *app.App) error {
				result, err := op(ctx, a, req)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	flags.bind(cmd, amountRequired)
	if extra != nil {
		apply = extra(cmd, &flags)
	}
	return cmd
}

func queryCmd() *cobra.Command {
	return tradeCmd("query", "Query the live trade state and whether it can be refunded or captured", false,
		func(ctx context.Context, a *app.App, req *ports.TradeRequest) (any, error) {
			return a.Service.Query(ctx, req)
		}, nil)
}

func captureCmd() *cobra.Command {
	return tradeCmd("capture", "Request capture of an authorized trade", true,
		func(ctx context.Context, a *app.App, req *ports.TradeRequest) (any, error) {
			return a.Service.Capture(ctx, req)
		}, nil)
}

func cancelCmd() *cobra.Command {
	return tradeCmd("cancel", "Cancel an authorization that has not been captured", true,
		func(ctx context.Context, a *app.App, req *ports.TradeRequest) (any, error) {
			return a.Service.Cancel(ctx, req)
		}, nil)
}

func refundCmd() *cobra.Command {
	return tradeCmd("refund", "Refund a captured trade in full", true,
		func(ctx context.Context, a *app.App, req *ports.TradeRequest) (any, error) {
			return a.Service.Refund(ctx, req)
		},
		func(cmd *cobra.Command, _ *tradeFlags) func(*ports.TradeRequest) {
			var manual bool
			cmd.Flags().BoolVar(&manual, "manual", false, "Refund a trade with no local order; requires --trade-no")
			return func(req *ports.TradeRequest) { req.Manual = manual }
		})
}
