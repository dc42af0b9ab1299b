package txbuilder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrBusy is returned while another submission is pending
	ErrBusy = errors.New("a transaction is already pending")
	// ErrCancelled is what a Signer returns when the user closes the prompt
	ErrCancelled = errors.New("transaction cancelled by user")
)

// Request is a descriptor bound to its contract and network
type Request struct {
	Network         string `json:"network"`
	ContractAddress string `json:"contractAddress"`
	ContractName    string `json:"contractName"`
	Descriptor
}

// Signer is the external signing flow. It signs and broadcasts, returning
// the transaction id.
type Signer interface {
	Sign(ctx context.Context, req Request) (txID string, err error)
}

// Callbacks receive the outcome of a submission
type Callbacks struct {
	OnFinish func(txID string)
	OnCancel func()
}

// Submitter hands descriptors to a Signer, one at a time
type Submitter struct {
	signer          Signer
	network         string
	contractAddress string
	contractName    string
	onComplete      func()
	logger          *zap.Logger

	busy atomic.Bool
}

// NewSubmitter creates a submitter. onComplete, if set, runs after every
// finished submission, typically to refresh the raffle state.
func NewSubmitter(signer Signer, network, contractAddress, contractName string, onComplete func(), logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		signer:          signer,
		network:         network,
		contractAddress: contractAddress,
		contractName:    contractName,
		onComplete:      onComplete,
		logger:          logger.Named("tx"),
	}
}

// Busy reports whether a submission is pending
func (s *Submitter) Busy() bool {
	return s.busy.Load()
}

// Submit signs d. A user cancellation goes to cb.OnCancel and returns nil;
// other failures return a *TxError carrying the user-facing message.
func (s *Submitter) Submit(ctx context.Context, d *Descriptor, cb Callbacks) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	req := Request{
		Network:         s.network,
		ContractAddress: s.contractAddress,
		ContractName:    s.contractName,
		Descriptor:      *d,
	}
	txID, err := s.signer.Sign(ctx, req)
	if err != nil {
		if errors.Is(err, ErrCancelled) || IsUserCancellation(err) {
			s.logger.Info("transaction cancelled", zap.String("function", d.FunctionName))
			if cb.OnCancel != nil {
				cb.OnCancel()
			}
			return nil
		}
		s.logger.Error("transaction failed", zap.String("function", d.FunctionName), zap.Error(err))
		return &TxError{Function: d.FunctionName, Message: ContractErrorMessage(err), Err: err}
	}

	s.logger.Info("transaction submitted", zap.String("function", d.FunctionName), zap.String("txid", txID))
	if cb.OnFinish != nil {
		cb.OnFinish(txID)
	}
	if s.onComplete != nil {
		s.onComplete()
	}
	return nil
}

// PromptSigner hands the request to an operator: it prints the request as
// JSON and reads back the transaction id. An empty line cancels.
type PromptSigner struct {
	In  io.Reader
	Out io.Writer
}

// Sign implements Signer
func (p *PromptSigner) Sign(ctx context.Context, req Request) (string, error) {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(req); err != nil {
		return "", fmt.Errorf("failed to write request: %w", err)
	}
	fmt.Fprint(p.Out, "txid (empty to cancel): ")

	line := make(chan string, 1)
	readErr := make(chan error, 1)
	go func() {
		s, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && s != "") {
			readErr <- err
			return
		}
		line <- s
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-readErr:
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("failed to read txid: %w", err)
	case s := <-line:
		txID := strings.TrimSpace(s)
		if txID == "" {
			return "", ErrCancelled
		}
		return txID, nil
	}
}
