package txbuilder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	testContract = "SP1ZGGS886YCZHMFXJR1EK61ZP34FNWNSX32N685T"
)

func TestBuySingleTicket(t *testing.T) {
	d, err := BuyTickets(testUser, 1, big.NewInt(1000000))
	require.NoError(t, err)

	assert.Equal(t, FnBuyTicket, d.FunctionName)
	assert.Empty(t, d.FunctionArgs)
	assert.Equal(t, ModeAllow, d.PostConditionMode)
	assert.Equal(t, []PostCondition{{
		Type: "stx-postcondition", Address: testUser, Condition: "lte", Amount: "1000000",
	}}, d.PostConditions)
}

func TestBuyMultipleTickets(t *testing.T) {
	d, err := BuyTickets(testUser, 5, big.NewInt(1000000))
	require.NoError(t, err)

	assert.Equal(t, FnBuyTickets, d.FunctionName)
	assert.Equal(t, []string{"0x0100000000000000000000000000000005"}, d.FunctionArgs)
	require.Len(t, d.PostConditions, 1)
	assert.Equal(t, "5000000", d.PostConditions[0].Amount)
	assert.Equal(t, ConditionLte, d.PostConditions[0].Condition)
}

func TestBuyTicketsJSON(t *testing.T) {
	d, err := BuyTickets(testUser, 1, big.NewInt(1000000))
	require.NoError(t, err)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"functionName": "buy-ticket",
		"functionArgs": [],
		"postConditions": [{"type":"stx-postcondition","address":"`+testUser+`","condition":"lte","amount":"1000000"}],
		"postConditionMode": 1
	}`, string(raw))
}

func TestBuyTicketsValidation(t *testing.T) {
	_, err := BuyTickets(testUser, 0, big.NewInt(1000000))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = BuyTickets(testUser, 11, big.NewInt(1000000))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = BuyTickets(testUser, 2, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = BuyTickets(testUser, 2, nil)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = BuyTickets("", 2, big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestDrawWinner(t *testing.T) {
	d := DrawWinner("", nil)
	assert.Equal(t, FnDrawWinner, d.FunctionName)
	assert.Empty(t, d.FunctionArgs)
	assert.Empty(t, d.PostConditions)
	assert.Equal(t, ModeDeny, d.PostConditionMode)

	d = DrawWinner(testContract+".daily-raffle-v2", big.NewInt(5000000))
	assert.Equal(t, []PostCondition{{
		Type: "stx-postcondition", Address: testContract + ".daily-raffle-v2", Condition: "gte", Amount: "250000",
	}}, d.PostConditions)
}

func TestClaimPrize(t *testing.T) {
	d := ClaimPrize()
	assert.Equal(t, FnClaimPrize, d.FunctionName)
	assert.Empty(t, d.FunctionArgs)
	assert.Empty(t, d.PostConditions)
	assert.Equal(t, ModeDeny, d.PostConditionMode)
}

func TestCanDraw(t *testing.T) {
	assert.True(t, CanDraw(testContract, testContract))
	assert.False(t, CanDraw(testUser, testContract))
	assert.False(t, CanDraw("", ""))
}

func TestContractErrorMessage(t *testing.T) {
	cases := map[string]string{
		"(err u104)":                      "Too early to draw - please wait for more blocks",
		"Transaction aborted: (err u100)": "Only the contract owner can perform this action",
		"Contract Error u107":             "No prize available to claim",
		"failed with code: 108":           "Prize has already been claimed",
		"abort_by_response u101":          "No tickets have been sold yet",
		"(err u999)":                      "Transaction failed - please try again",
		"insufficient funds for fee":      "Insufficient balance - please add more STX to your wallet",
		"request rejected":                "Transaction was cancelled",
		"broadcast timeout":               "Transaction timed out - please try again",
		"something odd":                   "Transaction failed - please try again",
	}
	for in, want := range cases {
		assert.Equal(t, want, ContractErrorMessage(errors.New(in)), in)
	}
	assert.Equal(t, "An unknown error occurred", ContractErrorMessage(nil))
}

func TestIsUserCancellation(t *testing.T) {
	assert.True(t, IsUserCancellation(errors.New("User Cancelled")))
	assert.True(t, IsUserCancellation(errors.New("Request rejected by user")))
	assert.False(t, IsUserCancellation(errors.New("rejected by node")))
	assert.False(t, IsUserCancellation(nil))
}

type fakeSigner struct {
	txID  string
	err   error
	got   Request
	block chan struct{}
}

func (f *fakeSigner) Sign(_ context.Context, req Request) (string, error) {
	f.got = req
	if f.block != nil {
		<-f.block
	}
	return f.txID, f.err
}

func TestSubmitFinish(t *testing.T) {
	signer := &fakeSigner{txID: "0xabc"}
	completed := 0
	s := NewSubmitter(signer, "mainnet", testContract, "daily-raffle-v2", func() { completed++ }, nil)

	var finished string
	d, err := BuyTickets(testUser, 2, big.NewInt(1000000))
	require.NoError(t, err)
	require.NoError(t, s.Submit(context.Background(), d, Callbacks{OnFinish: func(id string) { finished = id }}))

	assert.Equal(t, "0xabc", finished)
	assert.Equal(t, 1, completed)
	assert.Equal(t, testContract, signer.got.ContractAddress)
	assert.Equal(t, "daily-raffle-v2", signer.got.ContractName)
	assert.Equal(t, FnBuyTickets, signer.got.FunctionName)
	assert.False(t, s.Busy())
}

func TestSubmitCancellationIsNotAnError(t *testing.T) {
	for _, err := range []error{ErrCancelled, errors.New("User canceled the request")} {
		s := NewSubmitter(&fakeSigner{err: err}, "mainnet", testContract, "daily-raffle-v2", nil, nil)
		cancelled := false
		require.NoError(t, s.Submit(context.Background(), ClaimPrize(), Callbacks{OnCancel: func() { cancelled = true }}))
		assert.True(t, cancelled)
	}
}

func TestSubmitFailure(t *testing.T) {
	s := NewSubmitter(&fakeSigner{err: errors.New("(err u104)")}, "mainnet", testContract, "daily-raffle-v2", nil, nil)

	err := s.Submit(context.Background(), DrawWinner("", nil), Callbacks{})
	var txErr *TxError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, "Too early to draw - please wait for more blocks", txErr.Message)
	assert.Equal(t, FnDrawWinner, txErr.Function)
}

func TestSubmitOneAtATime(t *testing.T) {
	signer := &fakeSigner{txID: "0x1", block: make(chan struct{})}
	s := NewSubmitter(signer, "mainnet", testContract, "daily-raffle-v2", nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), ClaimPrize(), Callbacks{}) }()

	require.Eventually(t, s.Busy, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Submit(context.Background(), ClaimPrize(), Callbacks{}), ErrBusy)

	close(signer.block)
	require.NoError(t, <-done)
	assert.False(t, s.Busy())
}

func TestPromptSigner(t *testing.T) {
	var out bytes.Buffer
	p := &PromptSigner{In: strings.NewReader("0xdeadbeef\n"), Out: &out}

	txID, err := p.Sign(context.Background(), Request{ContractAddress: testContract, Descriptor: *ClaimPrize()})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", txID)
	assert.Contains(t, out.String(), `"functionName": "claim-prize"`)

	_, err = (&PromptSigner{In: strings.NewReader("\n"), Out: &out}).Sign(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = (&PromptSigner{In: strings.NewReader(""), Out: &out}).Sign(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrCancelled)
}
