// Package txbuilder prepares contract-call descriptors for the external
// signing flow and maps signing failures to user-facing messages.
package txbuilder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"
)

// Write functions of the raffle contract
const (
	FnBuyTicket  = "buy-ticket"
	FnBuyTickets = "buy-tickets"
	FnDrawWinner = "draw-winner"
	FnClaimPrize = "claim-prize"
)

// Ticket quantity bounds per purchase
const (
	MinQuantity = 1
	MaxQuantity = 10
)

// Dev fee the contract pays out on draw, in basis points
const (
	devFeeBPS      = 500
	bpsDenominator = 10000
)

// PostConditionMode tells the wallet whether unlisted transfers are allowed
type PostConditionMode int

const (
	ModeAllow PostConditionMode = 0x01
	ModeDeny  PostConditionMode = 0x02
)

// Condition codes for STX post-conditions
const (
	ConditionLte = "lte"
	ConditionGte = "gte"
)

var (
	ErrInvalidQuantity = fmt.Errorf("quantity must be between %d and %d", MinQuantity, MaxQuantity)
	ErrInvalidPrice    = errors.New("price per ticket must be positive")
	ErrInvalidAddress  = errors.New("invalid principal address")
)

// PostCondition is a spending guard in the wallet's JSON shape
type PostCondition struct {
	Type      string `json:"type"`
	Address   string `json:"address"`
	Condition string `json:"condition"`
	Amount    string `json:"amount"`
}

// STXPostCondition guards the micro-STX sent by address
func STXPostCondition(address, condition string, amount *big.Int) PostCondition {
	return PostCondition{
		Type:      "stx-postcondition",
		Address:   address,
		Condition: condition,
		Amount:    amount.String(),
	}
}

// Descriptor is a contract call ready for signing. FunctionArgs are
// 0x-prefixed serialized values.
type Descriptor struct {
	FunctionName      string            `json:"functionName"`
	FunctionArgs      []string          `json:"functionArgs"`
	PostConditions    []PostCondition   `json:"postConditions"`
	PostConditionMode PostConditionMode `json:"postConditionMode"`
}

func validatePrincipal(address string) error {
	if _, err := clarity.ParsePrincipal(address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}

// BuyTickets builds the ticket purchase. A single ticket uses buy-ticket
// without arguments; more use buy-tickets with the quantity. The buyer may
// send at most pricePerTicket*quantity.
func BuyTickets(userAddress string, quantity int, pricePerTicket *big.Int) (*Descriptor, error) {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	if pricePerTicket == nil || pricePerTicket.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if err := validatePrincipal(userAddress); err != nil {
		return nil, err
	}

	d := &Descriptor{
		FunctionName:      FnBuyTicket,
		FunctionArgs:      []string{},
		PostConditionMode: ModeAllow,
	}
	if quantity > 1 {
		arg, err := clarity.SerializeHex(clarity.NewUInt(uint64(quantity)))
		if err != nil {
			return nil, err
		}
		d.FunctionName = FnBuyTickets
		d.FunctionArgs = append(d.FunctionArgs, "0x"+arg)
	}

	total := new(big.Int).Mul(pricePerTicket, big.NewInt(int64(quantity)))
	d.PostConditions = []PostCondition{STXPostCondition(userAddress, ConditionLte, total)}
	return d, nil
}

// DrawWinner builds the draw. The caller sends nothing; when pot is known
// the contract is required to pay out at least the dev fee.
func DrawWinner(contractID string, pot *big.Int) *Descriptor {
	d := &Descriptor{
		FunctionName:      FnDrawWinner,
		FunctionArgs:      []string{},
		PostConditions:    []PostCondition{},
		PostConditionMode: ModeDeny,
	}
	if contractID != "" && pot != nil && pot.Sign() > 0 {
		fee := new(big.Int).Mul(pot, big.NewInt(devFeeBPS))
		fee.Quo(fee, big.NewInt(bpsDenominator))
		d.PostConditions = append(d.PostConditions, STXPostCondition(contractID, ConditionGte, fee))
	}
	return d
}

// ClaimPrize builds the claim. The caller only receives funds, so no guard
// is attached.
func ClaimPrize() *Descriptor {
	return &Descriptor{
		FunctionName:      FnClaimPrize,
		FunctionArgs:      []string{},
		PostConditions:    []PostCondition{},
		PostConditionMode: ModeDeny,
	}
}

// CanDraw gates the draw action to the contract owner. The contract itself
// enforces this; the gate only hides the action.
func CanDraw(userAddress, ownerAddress string) bool {
	return userAddress != "" && userAddress == ownerAddress
}
