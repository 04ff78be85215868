package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/newebpay-service/internal/app"
	"github.com/kevin07696/newebpay-service/internal/config"
	"github.com/kevin07696/newebpay-service/pkg/shutdown"
)

var Version = "dev"

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "newebpay-admin",
		Short:         "Operator tools for the NewebPay payment service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(decryptCmd())
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(refundCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// commandContext bounds a command and cancels it on SIGINT or SIGTERM
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := shutdown.SignalContext(context.Background())
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// withApp loads configuration from the environment, assembles the service and runs fn
func withApp(timeout time.Duration, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown.Shutdown() }()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
