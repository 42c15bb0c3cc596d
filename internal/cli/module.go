package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/RabbyHub/perps-engine/internal/accounts"
	"github.com/RabbyHub/perps-engine/internal/history"
	"github.com/RabbyHub/perps-engine/internal/marketdata"
	"github.com/RabbyHub/perps-engine/internal/session"
	"github.com/RabbyHub/perps-engine/pkg/wallet"
)

// Module provides the CLI commands
var Module = fx.Module("cli",
	fx.Provide(
		NewRunCmd,
	),
	fx.Invoke(RunCLI),
)

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in and run the perps engine",
	}

	cmd.Flags().StringP("account", "a", "", "Account address to trade with (defaults to last used)")

	return cmd
}

// RunCLI executes the cobra CLI with fx dependencies
func RunCLI(
	runCmd *cobra.Command,
	selector *accounts.Selector,
	machine *session.Machine,
	hist *history.Service,
	feed *marketdata.Feed,
) {
	rootCmd := &cobra.Command{
		Use:   "perps",
		Short: "Perps trading engine",
	}

	rootCmd.AddCommand(runCmd)

	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, selector, machine, hist, feed)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runSession resolves the account, drives the login machine, and starts
// the live feed. The background watchers keep running under the app
// lifecycle after this returns.
func runSession(
	cmd *cobra.Command,
	selector *accounts.Selector,
	machine *session.Machine,
	hist *history.Service,
	feed *marketdata.Feed,
) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	addr, _ := cmd.Flags().GetString("account")

	var account wallet.Account
	var err error
	if addr != "" {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid account address: %s", addr)
		}
		account, err = selector.Select(ctx, common.HexToAddress(addr))
	} else {
		account, err = selector.Restore(ctx)
	}
	if err != nil {
		return fmt.Errorf("resolve account: %w", err)
	}

	if err := machine.Login(ctx, account); err != nil {
		return fmt.Errorf("login %s: %w", account.Address.Hex(), err)
	}

	hist.SetAccount(ctx, account.Address)

	if err := feed.Start(context.Background()); err != nil {
		return fmt.Errorf("start live feed: %w", err)
	}

	fmt.Printf("Session ready for %s\n", account.Address.Hex())
	return nil
}
