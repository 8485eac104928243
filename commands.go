package main

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newScanCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List micro:bits (or relays) that can be connected to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			closer, err := setupLogging(cfg.Verbose, true)
			if err != nil {
				return err
			}
			defer closer.Close()

			connector, err := NewConnector(cfg.Link)
			if err != nil {
				return err
			}
			peers, err := connector.Scan(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range peers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.ID, p)
			}
			return nil
		},
	}
}

func newPairCommand() *cobra.Command {
	var psk, identity string
	cmd := &cobra.Command{
		Use:   "pair <relay-id>",
		Short: "Store the pre-shared key for a relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := hex.DecodeString(psk); err != nil || psk == "" {
				return fmt.Errorf("--psk must be a non-empty hex string")
			}
			if identity == "" {
				identity = uuid.NewString()
			}
			creds := RelayCredentials{Identity: identity, PSK: psk}
			if err := SaveCredentials(args[0], creds); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired %s as %s\n", args[0], identity)
			return nil
		},
	}
	cmd.Flags().StringVar(&psk, "psk", "", "pre-shared key, hex encoded (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "PSK identity (default: new UUID)")
	_ = cmd.MarkFlagRequired("psk")
	return cmd
}

func newForgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <relay-id>",
		Short: "Delete the stored key for a relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteCredentials(args[0]); err != nil {
				return fmt.Errorf("deleting credentials: %w", err)
			}
			return nil
		},
	}
}
