// Package contract provides the read-only contract call proxy
package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/metrics"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/rpc"

	"go.uber.org/zap"
)

// ErrMissingFunction is returned when no function name was supplied
var ErrMissingFunction = errors.New("functionName is required")

// Upstream is the hosted API surface the proxy forwards to
type Upstream interface {
	CallReadOnly(ctx context.Context, contractAddress, contractName, functionName, sender string, args []string) (*rpc.ReadOnlyResponse, error)
}

// ArgumentError reports an argument that could not be encoded
type ArgumentError struct {
	Index int
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %d: %v", e.Index, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// CallError is a read-only call the contract itself rejected (okay:false)
type CallError struct {
	Function string
	Cause    string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Function, e.Cause)
}

// Info is the liveness and configuration echo
type Info struct {
	Status          string `json:"status"`
	Network         string `json:"network"`
	ContractAddress string `json:"contractAddress"`
	ContractName    string `json:"contractName"`
	// WalletConnectProjectID is filled by the API layer for wallet clients
	WalletConnectProjectID string `json:"walletConnectProjectId,omitempty"`
}

// CallRequest is one proxied read-only call
type CallRequest struct {
	FunctionName string                     `json:"functionName"`
	Args         []clarity.FunctionArgument `json:"args,omitempty"`
	// FunctionArgs are pre-serialized hex values, used only when Args is empty
	FunctionArgs  []string `json:"functionArgs,omitempty"`
	SenderAddress string   `json:"senderAddress,omitempty"`
}

// CallResult is the outcome of a call the upstream answered successfully
type CallResult struct {
	Okay        bool
	Result      string
	Value       clarity.Value
	Cause       string
	DecodeError error
}

// Service handles read-only contract interactions
type Service struct {
	upstream        Upstream
	network         string
	contractAddress string
	contractName    string
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// NewService creates a new contract service
func NewService(upstream Upstream, network, contractAddress, contractName string, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		upstream:        upstream,
		network:         network,
		contractAddress: contractAddress,
		contractName:    contractName,
		logger:          logger.Named("contract"),
		metrics:         m,
	}
}

// Info returns the configuration echo; it has no side effects
func (s *Service) Info() Info {
	return Info{
		Status:          "ok",
		Network:         s.network,
		ContractAddress: s.contractAddress,
		ContractName:    s.contractName,
	}
}

// EncodeArgs serializes typed arguments in order, falling back to the
// pre-serialized hex arguments when no typed ones are given
func EncodeArgs(args []clarity.FunctionArgument, raw []string) ([]string, error) {
	if len(args) == 0 {
		out := make([]string, len(raw))
		copy(out, raw)
		return out, nil
	}

	out := make([]string, len(args))
	for i, arg := range args {
		encoded, err := clarity.EncodeArgument(arg)
		if err != nil {
			return nil, &ArgumentError{Index: i, Err: err}
		}
		out[i] = encoded
	}
	return out, nil
}

// Call forwards one read-only call. Upstream HTTP failures are returned as
// *rpc.UpstreamError; a result that fails to decode is not an error, the raw
// hex is returned with DecodeError set.
func (s *Service) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	if req.FunctionName == "" {
		return nil, ErrMissingFunction
	}

	args, err := EncodeArgs(req.Args, req.FunctionArgs)
	if err != nil {
		return nil, err
	}

	sender := req.SenderAddress
	if sender == "" {
		sender = s.contractAddress
	}

	start := time.Now()
	resp, err := s.upstream.CallReadOnly(ctx, s.contractAddress, s.contractName, req.FunctionName, sender, args)
	if err != nil {
		outcome := "transport_error"
		var upstream *rpc.UpstreamError
		if errors.As(err, &upstream) {
			outcome = "upstream_error"
			s.logger.Error("hosted API error",
				zap.String("function", req.FunctionName),
				zap.Int("status", upstream.Status),
				zap.String("body", upstream.Body))
		} else {
			s.logger.Error("contract proxy error", zap.String("function", req.FunctionName), zap.Error(err))
		}
		s.metrics.ObserveUpstream(req.FunctionName, outcome, time.Since(start))
		return nil, err
	}

	if !resp.Okay {
		s.metrics.ObserveUpstream(req.FunctionName, "call_failed", time.Since(start))
		return &CallResult{Okay: false, Cause: resp.Cause}, nil
	}

	result := &CallResult{Okay: true, Result: resp.Result}
	value, err := clarity.DecodeHex(resp.Result)
	if err != nil {
		s.logger.Warn("returning undecoded result",
			zap.String("function", req.FunctionName),
			zap.String("result", resp.Result),
			zap.Error(err))
		result.DecodeError = err
		s.metrics.ObserveUpstream(req.FunctionName, "decode_error", time.Since(start))
		return result, nil
	}

	result.Value = value
	s.metrics.ObserveUpstream(req.FunctionName, "ok", time.Since(start))
	return result, nil
}

// Query calls functionName and returns the decoded value, treating a
// rejected call or an undecodable result as an error
func (s *Service) Query(ctx context.Context, functionName string, args ...clarity.FunctionArgument) (clarity.Value, error) {
	res, err := s.Call(ctx, CallRequest{FunctionName: functionName, Args: args})
	if err != nil {
		return nil, err
	}
	if !res.Okay {
		return nil, &CallError{Function: functionName, Cause: res.Cause}
	}
	if res.DecodeError != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", functionName, res.DecodeError)
	}
	return res.Value, nil
}
