package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/contract"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/display"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/raffle"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/rpc"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/wallet"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	snapshotRemote  string
	snapshotAddress string
	snapshotSession string
	snapshotJSON    bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch and print one raffle snapshot",
	Long: `Fetch one raffle snapshot, either directly from the hosted API or through
a running backend (--remote). The user-scoped fields are filled for --address,
or for the address found in the wallet session file (--session).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.UpstreamTimeout)
		defer cancel()

		address := snapshotAddress
		if address == "" {
			address = sessionAddress(ctx, snapshotSession)
		}

		fetcher, err := raffle.NewFetcher(snapshotCaller(), raffle.Options{Logger: logger})
		if err != nil {
			return err
		}
		snap, err := fetcher.Fetch(ctx, address)
		if err != nil {
			return fmt.Errorf("%s: %w", raffle.FetchErrorMessage, err)
		}

		if snapshotJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		printSnapshot(snap)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotRemote, "remote", "", "base URL of a running backend, e.g. http://localhost:3000")
	snapshotCmd.Flags().StringVar(&snapshotAddress, "address", "", "user address for the user-scoped fields")
	snapshotCmd.Flags().StringVar(&snapshotSession, "session", "", "wallet session file (defaults to SESSION_FILE)")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "print the raw snapshot as JSON")
}

func snapshotCaller() raffle.Caller {
	if snapshotRemote != "" {
		return contract.NewHTTPCaller(snapshotRemote, cfg.UpstreamTimeout)
	}
	client := rpc.NewClient(cfg.APIBaseURL(), cfg.APIKey, cfg.UpstreamTimeout)
	return contract.NewService(client, cfg.Network, cfg.ContractAddress, cfg.ContractName, logger, nil)
}

// sessionAddress reads the connected address from the wallet session, if
// any. The wallet is only consulted from an interactive terminal.
func sessionAddress(ctx context.Context, path string) string {
	if path == "" {
		path = cfg.SessionFile
	}
	if path == "" {
		return ""
	}

	loader := wallet.NewLoader(wallet.TerminalEnvironment(os.Stdin), wallet.FileFactory(path))
	manager := wallet.NewManager(loader, wallet.ManagerOptions{Mainnet: cfg.IsMainnet(), Logger: logger})
	session := manager.Init(ctx)
	if session.Error != "" {
		logger.Warn("wallet session unavailable", zap.String("error", session.Error))
	}
	return session.Address
}

func printSnapshot(s *raffle.Snapshot) {
	fmt.Printf("Round:             %s\n", s.CurrentRound)
	fmt.Printf("Pot:               %s STX\n", display.FormatSTX(s.PotBalance))
	fmt.Printf("Estimated prize:   %s STX\n", display.FormatSTX(s.EstimatedPrize))
	fmt.Printf("Ticket price:      %s STX\n", display.FormatSTX(s.TicketPrice))
	fmt.Printf("Tickets sold:      %s (%s players)\n", s.TicketsSold, s.UniquePlayers)
	if s.CanDraw {
		fmt.Println("Draw:              available now")
	} else {
		fmt.Printf("Draw:              in %s blocks\n", s.BlocksUntilDraw)
	}
	if w := s.LastWinner; w != nil {
		fmt.Printf("Last winner:       %s won %s STX in round %s\n", display.FormatAddress(w.Address), display.FormatSTX(w.Prize), w.Round)
	}
	if s.UserAddress != "" {
		fmt.Printf("Your tickets:      %s (%s)\n", s.UserTickets, display.FormatAddress(s.UserAddress))
		if p := s.UnclaimedPrize; p != nil {
			fmt.Printf("Unclaimed prize:   %s STX from round %s\n", display.FormatSTX(p.Amount), p.Round)
		}
	}
	fmt.Printf("Fetched at:        %s\n", s.FetchedAt.Format(time.RFC3339))
}
