package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakingledger/internal/crypto"
)

// stakectl address
func newAddressCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the address of the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.signer()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Address().Hex())
			return err
		},
	}
}

// stakectl encrypt-key --out <file>
func newEncryptKeyCmd(opts *globalOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "encrypt-key",
		Short: "Encrypt the --key private key under --password into a key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := crypto.EncryptKey(opts.key, opts.password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write key file: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "key.json", "path of the key file to write")
	return cmd
}
