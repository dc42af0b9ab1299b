package raffle

import (
	"fmt"
	"math/big"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"
)

// Tuple field names tried in order. Contract revisions have used several.
var (
	winnerFields = []string{"winner", "winner-address", "player"}
	prizeFields  = []string{"prize", "prize-amount", "amount"}
	amountFields = []string{"amount", "prize", "prize-amount"}
	roundFields  = []string{"round", "round-id", "round-number"}
)

// errResponse reports a contract (err ...) answer to a read-only query
type errResponse struct {
	value clarity.Value
}

func (e *errResponse) Error() string {
	return fmt.Sprintf("contract returned err %v", clarity.ToJSON(e.value))
}

// unwrap strips ok/some wrappers; an err response is an error and none
// yields (nil, nil)
func unwrap(v clarity.Value) (clarity.Value, error) {
	for {
		switch t := v.(type) {
		case clarity.ResponseErr:
			return nil, &errResponse{value: t.Value}
		case clarity.ResponseOk:
			v = t.Value
		case clarity.Some:
			v = t.Value
		case clarity.None:
			return nil, nil
		default:
			return v, nil
		}
	}
}

func asUint(v clarity.Value) (*big.Int, error) {
	inner, err := unwrap(v)
	if err != nil {
		return nil, err
	}
	switch t := inner.(type) {
	case clarity.UInt:
		return new(big.Int).Set(t.V), nil
	case clarity.Int:
		if t.V.Sign() < 0 {
			return nil, fmt.Errorf("expected non-negative integer, got %s", t.V)
		}
		return new(big.Int).Set(t.V), nil
	case nil:
		return nil, fmt.Errorf("expected integer, got none")
	}
	return nil, fmt.Errorf("expected integer, got %T", inner)
}

func asBool(v clarity.Value) (bool, error) {
	inner, err := unwrap(v)
	if err != nil {
		return false, err
	}
	b, ok := inner.(clarity.Bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", inner)
	}
	return bool(b), nil
}

// asTuple returns (nil, nil) for none
func asTuple(v clarity.Value) (clarity.Tuple, error) {
	inner, err := unwrap(v)
	if err != nil || inner == nil {
		return nil, err
	}
	t, ok := inner.(clarity.Tuple)
	if !ok {
		return nil, fmt.Errorf("expected tuple, got %T", inner)
	}
	return t, nil
}

// field returns the first present field among names
func field(t clarity.Tuple, names []string) (clarity.Value, bool) {
	for _, name := range names {
		if v, ok := t[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func principalString(v clarity.Value) (string, bool) {
	inner, err := unwrap(v)
	if err != nil {
		return "", false
	}
	switch t := inner.(type) {
	case clarity.StandardPrincipal:
		return t.String(), true
	case clarity.ContractPrincipal:
		return t.String(), true
	}
	return "", false
}

// parseWinner reads a round record; nil when the round has no winner yet
func parseWinner(v clarity.Value, round *big.Int) (*Winner, error) {
	t, err := asTuple(v)
	if err != nil || t == nil {
		return nil, err
	}

	wv, ok := field(t, winnerFields)
	if !ok {
		return nil, fmt.Errorf("round record has no winner field")
	}
	address, ok := principalString(wv)
	if !ok {
		// (winner none) while the round is still open
		return nil, nil
	}

	w := &Winner{Address: address, Prize: new(big.Int), Round: new(big.Int).Set(round)}
	if pv, ok := field(t, prizeFields); ok {
		if w.Prize, err = asUint(pv); err != nil {
			return nil, fmt.Errorf("round record prize: %w", err)
		}
	}
	if rv, ok := field(t, roundFields); ok {
		if r, err := asUint(rv); err == nil {
			w.Round = r
		}
	}
	return w, nil
}

// parseUnclaimed reads get-unclaimed-prize; nil when nothing is claimable
func parseUnclaimed(v clarity.Value) (*UnclaimedPrize, error) {
	t, err := asTuple(v)
	if err != nil || t == nil {
		return nil, err
	}

	av, ok := field(t, amountFields)
	if !ok {
		return nil, fmt.Errorf("unclaimed prize has no amount field")
	}
	amount, err := asUint(av)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, nil
	}

	prize := &UnclaimedPrize{Amount: amount, Round: new(big.Int)}
	if rv, ok := field(t, roundFields); ok {
		if prize.Round, err = asUint(rv); err != nil {
			return nil, fmt.Errorf("unclaimed prize round: %w", err)
		}
	}
	return prize, nil
}
