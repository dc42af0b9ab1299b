package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/contract"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/raffle"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/txbuilder"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	txQuantity int
	txPrice    string
	txPot      string
	txAddress  string
	txSession  string
	txRemote   string
	txSign     bool
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Prepare raffle transactions for the wallet",
}

var txBuyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Prepare a ticket purchase",
	RunE: func(cmd *cobra.Command, args []string) error {
		price, ok := new(big.Int).SetString(txPrice, 10)
		if !ok {
			return fmt.Errorf("invalid --price %q", txPrice)
		}
		address := txSender(cmd.Context())
		if address == "" {
			return errors.New("--address is required when no wallet session is connected")
		}

		d, err := txbuilder.BuyTickets(address, txQuantity, price)
		if err != nil {
			return err
		}
		return emit(cmd, d, address)
	},
}

var txDrawCmd = &cobra.Command{
	Use:   "draw",
	Short: "Prepare the winner draw (contract owner only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var pot *big.Int
		if txPot != "" {
			var ok bool
			if pot, ok = new(big.Int).SetString(txPot, 10); !ok {
				return fmt.Errorf("invalid --pot %q", txPot)
			}
		}

		address := txSender(cmd.Context())
		if !txbuilder.CanDraw(address, cfg.ContractAddress) {
			fmt.Fprintln(os.Stderr, "warning: only the contract owner can draw; the contract will reject this call")
		}
		return emit(cmd, txbuilder.DrawWinner(cfg.ContractAddress+"."+cfg.ContractName, pot), address)
	},
}

var txClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Prepare a prize claim",
	RunE: func(cmd *cobra.Command, args []string) error {
		return emit(cmd, txbuilder.ClaimPrize(), txSender(cmd.Context()))
	},
}

func txSender(ctx context.Context) string {
	if txAddress != "" {
		return txAddress
	}
	return sessionAddress(ctx, txSession)
}

// emit prints the descriptor, or with --sign hands it to an operator
// through the terminal
func emit(cmd *cobra.Command, d *txbuilder.Descriptor, address string) error {
	if !txSign {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	signer := &txbuilder.PromptSigner{In: os.Stdin, Out: os.Stdout}
	submitter := txbuilder.NewSubmitter(signer, cfg.Network, cfg.ContractAddress, cfg.ContractName,
		afterSubmit(cmd.Context(), address), logger)
	err := submitter.Submit(cmd.Context(), d, txbuilder.Callbacks{
		OnFinish: func(txID string) { fmt.Printf("submitted %s\n", txID) },
		OnCancel: func() { fmt.Println("cancelled") },
	})
	var txErr *txbuilder.TxError
	if errors.As(err, &txErr) {
		return errors.New(txErr.Message)
	}
	return err
}

// afterSubmit refreshes the raffle state once a transaction went out: a
// remote backend is asked to refetch, otherwise the snapshot is fetched and
// printed here
func afterSubmit(ctx context.Context, address string) func() {
	return func() {
		if txRemote != "" {
			if err := contract.NewHTTPCaller(txRemote, cfg.UpstreamTimeout).Refresh(ctx, address); err != nil {
				logger.Warn("failed to refresh remote raffle state", zap.Error(err))
			}
			return
		}

		fetcher, err := raffle.NewFetcher(snapshotCaller(), raffle.Options{Logger: logger})
		if err != nil {
			logger.Warn("failed to create fetcher", zap.Error(err))
			return
		}
		snap, err := fetcher.Fetch(ctx, address)
		if err != nil {
			logger.Warn(raffle.FetchErrorMessage, zap.Error(err))
			return
		}
		printSnapshot(snap)
	}
}

func init() {
	txBuyCmd.Flags().IntVarP(&txQuantity, "quantity", "q", 1, "number of tickets (1-10)")
	txBuyCmd.Flags().StringVar(&txPrice, "price", "1000000", "price per ticket in micro-STX")
	txDrawCmd.Flags().StringVar(&txPot, "pot", "", "current pot in micro-STX, adds the dev fee guard")

	txCmd.PersistentFlags().StringVar(&txAddress, "address", "", "sender address")
	txCmd.PersistentFlags().StringVar(&txSession, "session", "", "wallet session file (defaults to SESSION_FILE)")
	txCmd.PersistentFlags().BoolVar(&txSign, "sign", false, "hand the transaction to the signing prompt")
	txCmd.PersistentFlags().StringVar(&txRemote, "remote", "", "backend to refresh after a signed transaction, e.g. http://localhost:3000")

	txCmd.AddCommand(txBuyCmd, txDrawCmd, txClaimCmd)
}
