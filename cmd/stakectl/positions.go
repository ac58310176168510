package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// stakectl stake <days> <amount>
func newStakeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stake <days> <amount-wei>",
		Short: "Lock funds for a lock period",
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
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			pos, err := c.Stake(cmd.Context(), days, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pos)
		},
	}
}

// stakectl position <id>
func newPositionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position <id>",
		Short: "Show one position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			pos, err := c.Position(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pos)
		},
	}
}

// stakectl positions [address]
func newPositionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "positions [address]",
		Short: "List an address's positions (defaults to the signing key's)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var owner string
			if len(args) == 1 {
				owner = args[0]
			} else {
				s, err := opts.signer()
				if err != nil {
					return fmt.Errorf("no address given and no key to derive one: %w", err)
				}
				owner = s.Address().Hex()
			}
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			resp, err := c.PositionsForOwner(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

// stakectl close <id>
func newCloseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <id>",
		Short: "Close a position and withdraw",
		Long: `close pays out principal plus interest once a position has unlocked.
Closing earlier returns the principal only and forfeits the interest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			closure, err := c.Close(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), closure)
		},
	}
}

// stakectl unlock <id> <time>
func newUnlockCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id> <rfc3339-time>",
		Short: "Move a position's unlock time (operator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			at, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("unlock time must be RFC3339: %w", err)
			}
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			pos, err := c.ChangeUnlock(cmd.Context(), id, at)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pos)
		},
	}
}
