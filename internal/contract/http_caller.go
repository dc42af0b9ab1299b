package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/rpc"
)

// HTTPCaller queries a remote backend over POST /api/contract
type HTTPCaller struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCaller creates a caller for the backend served at baseURL
func NewHTTPCaller(baseURL string, timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type proxyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

// Query implements the same contract as Service.Query over HTTP
func (h *HTTPCaller) Query(ctx context.Context, functionName string, args ...clarity.FunctionArgument) (clarity.Value, error) {
	body, err := json.Marshal(CallRequest{FunctionName: functionName, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBytes, err := h.post(ctx, "/api/contract", body)
	if err != nil {
		return nil, err
	}

	var out proxyResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !out.Okay {
		return nil, &CallError{Function: functionName, Cause: out.Error}
	}

	value, err := clarity.DecodeHex(out.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", functionName, err)
	}
	return value, nil
}

// Refresh asks the backend to refetch the raffle state for address, as a
// client does after a transaction completes
func (h *HTTPCaller) Refresh(ctx context.Context, address string) error {
	path := "/api/raffle/refresh"
	if address != "" {
		path += "?address=" + url.QueryEscape(address)
	}
	_, err := h.post(ctx, path, nil)
	return err
}

func (h *HTTPCaller) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := rpc.ReadBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &rpc.UpstreamError{Status: resp.StatusCode, Body: string(respBytes)}
	}
	return respBytes, nil
}
