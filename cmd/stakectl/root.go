package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/stakingledger/internal/client"
	"github.com/alanyoungcy/stakingledger/internal/crypto"
)

const (
	apiFlag      = "api"
	keyFlag      = "key"
	keyFileFlag  = "key-file"
	passwordFlag = "password"
	apiKeyFlag   = "api-key"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	api      string
	key      string
	keyFile  string
	password string
	apiKey   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "stakectl",
		Short: "Stake, inspect and administer a staking ledger",
		Long: `stakectl talks to a stakingd server. Read-only commands need no key.
Commands that stake, close or administer sign each request with a private
key given by --key, or by --key-file plus --password for an encrypted key.

The key and password may also come from STAKECTL_KEY and STAKECTL_PASSWORD.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.api, apiFlag, envOr("STAKECTL_API", "http://localhost:8000"), "staking API base URL")
	cmd.PersistentFlags().StringVar(&opts.key, keyFlag, os.Getenv("STAKECTL_KEY"), "hex private key used to sign requests")
	cmd.PersistentFlags().StringVar(&opts.keyFile, keyFileFlag, "", "encrypted key file written by encrypt-key")
	cmd.PersistentFlags().StringVar(&opts.password, passwordFlag, os.Getenv("STAKECTL_PASSWORD"), "password for --key-file")
	cmd.PersistentFlags().StringVar(&opts.apiKey, apiKeyFlag, os.Getenv("STAKECTL_API_KEY"), "server API key, when one is configured")

	cmd.AddCommand(
		newTiersCmd(opts),
		newQuoteCmd(opts),
		newSetTierCmd(opts),
		newStakeCmd(opts),
		newPositionCmd(opts),
		newPositionsCmd(opts),
		newCloseCmd(opts),
		newUnlockCmd(opts),
		newStatusCmd(opts),
		newAddressCmd(opts),
		newEncryptKeyCmd(opts),
	)
	return cmd
}

// signer loads the configured key. It fails when none is given.
func (o *globalOptions) signer() (*crypto.Signer, error) {
	key, err := crypto.LoadKey(crypto.KeySource{
		RawKey:   o.key,
		KeyFile:  o.keyFile,
		Password: o.password,
	})
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(key)
}

// client builds an API client. signed requires a key.
func (o *globalOptions) client(signed bool) (*client.Client, error) {
	var opts []client.Option
	if o.apiKey != "" {
		opts = append(opts, client.WithAPIKey(o.apiKey))
	}
	if signed {
		s, err := o.signer()
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithSigner(s))
	}
	return client.New(o.api, opts...), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDays(s string) (uint32, error) {
	days, err := strconv.ParseUint(s, 10, 32)
	if err != nil || days == 0 {
		return 0, fmt.Errorf("lock period must be a positive number of days, got %q", s)
	}
	return uint32(days), nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("position id must be an unsigned integer, got %q", s)
	}
	return id, nil
}

func parseWei(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount must be a decimal wei value, got %q", s)
	}
	return v, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
