package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

// stakectl tiers
func newTiersCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List lock periods and their rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			tiers, err := c.Tiers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tiers)
		},
	}
}

// stakectl quote <days> <amount>
func newQuoteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <days> <amount-wei>",
		Short: "Preview the interest and unlock time of a stake",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := parseDays(args[0])
			if err != nil {
				return err
			}
			amount, err := parseWei(args[1])
			if err != nil {
				return err
			}
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			q, err := c.Quote(cmd.Context(), days, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), q)
		},
	}
}

// stakectl set-tier <days> <rate-bps>
func newSetTierCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <days> <rate-bps>",
		Short: "Create or overwrite a tier (operator only)",
		Long: `set-tier registers a lock period with a rate in basis points, where
700 means 7.00%. Existing positions keep the rate they were opened with.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := parseDays(args[0])
			if err != nil {
				return err
			}
			rate, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			tier, err := c.SetTier(cmd.Context(), days, rate)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tier)
		},
	}
}

// stakectl status
func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server's mode, operator and book totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			raw, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}
