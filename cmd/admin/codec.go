package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kevin07696/newebpay-service/internal/adapters/newebpay"
	"github.com/kevin07696/newebpay-service/internal/app"
	"github.com/kevin07696/newebpay-service/internal/config"
)

// loadCodec only needs the credential section of the configuration
func loadCodec() (*newebpay.Codec, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	ctx, cancel := commandContext(30 * time.Second)
	defer cancel()
	return app.LoadCodec(ctx, cfg.Credential, newLogger())
}

func decryptCmd() *cobra.Command {
	var tradeSha string

	cmd := &cobra.Command{
		Use:   "decrypt [TradeInfo]",
		Short: "Decrypt a TradeInfo payload, verifying TradeSha when given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec()
			if err != nil {
				return err
			}

			var plaintext string
			if tradeSha != "" {
				plaintext, err = codec.OpenEnvelope(args[0], tradeSha)
			} else {
				plaintext, err = codec.DecryptPayload(args[0])
			}
			if err != nil {
				return err
			}

			if notification, err := newebpay.ParseTradeNotification(plaintext); err == nil {
				return printJSON(notification)
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}

	cmd.Flags().StringVar(&tradeSha, "sha", "", "TradeSha to verify before decrypting")
	return cmd
}

func encryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Encrypt a query string and print TradeInfo and TradeSha",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec()
			if err != nil {
				return err
			}
			tradeInfo := codec.EncryptPayload(args[0])
			return printJSON(map[string]string{
				"MerchantID": codec.MerchantID(),
				"TradeInfo":  tradeInfo,
				"TradeSha":   codec.SignPayload(tradeInfo),
			})
		},
	}
}

func signCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign [TradeInfo]",
		Short: "Compute the TradeSha for an encrypted payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := loadCodec()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), codec.SignPayload(args[0]))
			return nil
		},
	}
}
