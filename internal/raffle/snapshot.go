// Package raffle assembles point-in-time snapshots of the raffle contract
// from a fixed batch of read-only queries and keeps them refreshed.
package raffle

import (
	"encoding/json"
	"math/big"
	"time"
)

// Winner is the stored record of a finished round
type Winner struct {
	Address string
	Prize   *big.Int
	Round   *big.Int
}

// UnclaimedPrize is a prize the caller can still claim
type UnclaimedPrize struct {
	Amount *big.Int
	Round  *big.Int
}

// Snapshot is an immutable view of the contract state. Integers stay
// arbitrary precision and marshal as decimal strings.
type Snapshot struct {
	Generation  uint64
	FetchedAt   time.Time
	UserAddress string

	CurrentRound    *big.Int
	PotBalance      *big.Int
	TicketsSold     *big.Int
	UniquePlayers   *big.Int
	TicketPrice     *big.Int
	EstimatedPrize  *big.Int
	CanDraw         bool
	BlocksUntilDraw *big.Int

	LastWinner *Winner

	UserTickets    *big.Int
	UnclaimedPrize *UnclaimedPrize
}

type winnerJSON struct {
	Address string `json:"address"`
	Prize   string `json:"prize"`
	Round   string `json:"round"`
}

type prizeJSON struct {
	Amount string `json:"amount"`
	Round  string `json:"round"`
}

type snapshotJSON struct {
	Generation      uint64      `json:"generation"`
	FetchedAt       time.Time   `json:"fetchedAt"`
	UserAddress     string      `json:"userAddress,omitempty"`
	CurrentRound    string      `json:"currentRound"`
	PotBalance      string      `json:"potBalance"`
	TicketsSold     string      `json:"ticketsSold"`
	UniquePlayers   string      `json:"uniquePlayers"`
	TicketPrice     string      `json:"ticketPrice"`
	EstimatedPrize  string      `json:"estimatedPrize"`
	CanDraw         bool        `json:"canDraw"`
	BlocksUntilDraw string      `json:"blocksUntilDraw"`
	LastWinner      *winnerJSON `json:"lastWinner"`
	UserTickets     string      `json:"userTickets"`
	UnclaimedPrize  *prizeJSON  `json:"unclaimedPrize"`
}

func decimalString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// MarshalJSON renders every integer as a decimal string
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Generation:      s.Generation,
		FetchedAt:       s.FetchedAt,
		UserAddress:     s.UserAddress,
		CurrentRound:    decimalString(s.CurrentRound),
		PotBalance:      decimalString(s.PotBalance),
		TicketsSold:     decimalString(s.TicketsSold),
		UniquePlayers:   decimalString(s.UniquePlayers),
		TicketPrice:     decimalString(s.TicketPrice),
		EstimatedPrize:  decimalString(s.EstimatedPrize),
		CanDraw:         s.CanDraw,
		BlocksUntilDraw: decimalString(s.BlocksUntilDraw),
		UserTickets:     decimalString(s.UserTickets),
	}
	if s.LastWinner != nil {
		out.LastWinner = &winnerJSON{
			Address: s.LastWinner.Address,
			Prize:   decimalString(s.LastWinner.Prize),
			Round:   decimalString(s.LastWinner.Round),
		}
	}
	if s.UnclaimedPrize != nil {
		out.UnclaimedPrize = &prizeJSON{
			Amount: decimalString(s.UnclaimedPrize.Amount),
			Round:  decimalString(s.UnclaimedPrize.Round),
		}
	}
	return json.Marshal(out)
}

// withGeneration returns a copy stamped with gen; published snapshots are
// never mutated in place
func (s *Snapshot) withGeneration(gen uint64) *Snapshot {
	cp := *s
	cp.Generation = gen
	return &cp
}
