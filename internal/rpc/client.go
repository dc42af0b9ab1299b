// Package rpc provides the hosted Stacks API client used for read-only
// contract calls
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIKeyHeader carries the static hosted-API key
const APIKeyHeader = "x-api-key"

// MaxResponseSize caps every response body read from the hosted API
const MaxResponseSize = 4 << 20

// ErrResponseTooLarge is returned for bodies over MaxResponseSize
var ErrResponseTooLarge = errors.New("response body too large")

// Client represents a hosted Stacks API client
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// ReadOnlyRequest is the body of a call-read request
type ReadOnlyRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

// ReadOnlyResponse is the upstream answer to a call-read request
type ReadOnlyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result,omitempty"`
	Cause  string `json:"cause,omitempty"`
}

// NodeInfo is the subset of /v2/info used by the health check
type NodeInfo struct {
	NetworkID       int    `json:"network_id"`
	StacksTipHeight uint64 `json:"stacks_tip_height"`
	BurnBlockHeight uint64 `json:"burn_block_height"`
	ServerVersion   string `json:"server_version"`
}

// UpstreamError is a non-success HTTP response, kept verbatim
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// NewClient creates a new hosted API client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// CallReadOnly calls a read-only contract function. Arguments are hex
// serialized values; a missing 0x prefix is added.
func (c *Client) CallReadOnly(ctx context.Context, contractAddress, contractName, functionName, sender string, args []string) (*ReadOnlyResponse, error) {
	hexArgs := make([]string, len(args))
	for i, a := range args {
		if !strings.HasPrefix(a, "0x") {
			a = "0x" + a
		}
		hexArgs[i] = a
	}

	reqBytes, err := json.Marshal(ReadOnlyRequest{Sender: sender, Arguments: hexArgs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s", c.baseURL,
		url.PathEscape(contractAddress), url.PathEscape(contractName), url.PathEscape(functionName))

	respBytes, err := c.do(ctx, http.MethodPost, endpoint, reqBytes)
	if err != nil {
		return nil, err
	}

	var result ReadOnlyResponse
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// GetInfo returns the node info of the hosted API
func (c *Client) GetInfo(ctx context.Context) (*NodeInfo, error) {
	respBytes, err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/info", nil)
	if err != nil {
		return nil, err
	}

	var info NodeInfo
	if err := json.Unmarshal(respBytes, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node info: %w", err)
	}

	return &info, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	// Execute request
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// Read response
	respBytes, err := ReadBody(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBytes)}
	}

	return respBytes, nil
}

// ReadBody reads at most MaxResponseSize bytes of r
func ReadBody(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(b) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return b, nil
}
