package api

import (
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/display"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/raffle"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/txbuilder"
)

// raffleView is what clients render: the raw snapshot plus preformatted
// display strings
type raffleView struct {
	Snapshot *raffle.Snapshot `json:"snapshot"`
	Loading  bool             `json:"loading"`
	Error    string           `json:"error,omitempty"`
	Display  *displayView     `json:"display,omitempty"`
}

type displayView struct {
	PotBalance      string `json:"potBalance"`
	PotBalanceShort string `json:"potBalanceShort"`
	EstimatedPrize  string `json:"estimatedPrize"`
	PrizeAfterFee   string `json:"prizeAfterFee"`
	TicketPrice     string `json:"ticketPrice"`
	LastWinner      string `json:"lastWinner,omitempty"`
	LastWinnerPrize string `json:"lastWinnerPrize,omitempty"`
	UnclaimedPrize  string `json:"unclaimedPrize,omitempty"`
	UserAddress     string `json:"userAddress,omitempty"`
	CanDraw         bool   `json:"canDraw"`
}

func newRaffleView(state raffle.State, address, owner string) raffleView {
	v := raffleView{Snapshot: state.Snapshot, Loading: state.Loading, Error: state.Error}
	snap := state.Snapshot
	if snap == nil {
		return v
	}

	d := &displayView{
		PotBalance:      display.FormatSTX(snap.PotBalance),
		PotBalanceShort: display.FormatSTXShort(snap.PotBalance),
		EstimatedPrize:  display.FormatSTX(snap.EstimatedPrize),
		PrizeAfterFee:   display.FormatSTX(display.PrizeAfterFee(snap.PotBalance)),
		TicketPrice:     display.FormatSTX(snap.TicketPrice),
		UserAddress:     display.FormatAddress(address),
		// the draw action is offered to the owner only, and only when the
		// contract reports the round as drawable
		CanDraw: snap.CanDraw && txbuilder.CanDraw(address, owner),
	}
	if w := snap.LastWinner; w != nil {
		d.LastWinner = display.FormatAddress(w.Address)
		d.LastWinnerPrize = display.FormatSTX(w.Prize)
	}
	if p := snap.UnclaimedPrize; p != nil {
		d.UnclaimedPrize = display.FormatSTX(p.Amount)
	}
	v.Display = d
	return v
}
