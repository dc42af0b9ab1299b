// Package api provides REST API handlers
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/unclekaldoteth/stacks-daily-raffle/config"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/contract"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/raffle"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/rpc"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/txbuilder"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContractService is the read-only call proxy
type ContractService interface {
	Call(ctx context.Context, req contract.CallRequest) (*contract.CallResult, error)
	Info() contract.Info
}

// NodeInfoSource reports the upstream chain tip for health checks
type NodeInfoSource interface {
	GetInfo(ctx context.Context) (*rpc.NodeInfo, error)
}

// Handler manages API handlers
type Handler struct {
	nodeInfo        NodeInfoSource
	contractService ContractService
	fetcher         *raffle.Fetcher
	config          *config.Config
	logger          *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(nodeInfo NodeInfoSource, contractService ContractService, fetcher *raffle.Fetcher, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		nodeInfo:        nodeInfo,
		contractService: contractService,
		fetcher:         fetcher,
		config:          cfg,
		logger:          logger.Named("api"),
	}
}

func (h *Handler) contractID() string {
	return h.config.ContractAddress + "." + h.config.ContractName
}

// ContractInfo handles GET /api/contract
func (h *Handler) ContractInfo(c *gin.Context) {
	info := h.contractService.Info()
	info.WalletConnectProjectID = h.config.WalletConnectProjectID
	c.JSON(http.StatusOK, info)
}

// CallContract handles POST /api/contract
func (h *Handler) CallContract(c *gin.Context) {
	var req contract.CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	res, err := h.contractService.Call(c.Request.Context(), req)
	if err != nil {
		var upstream *rpc.UpstreamError
		var argErr *contract.ArgumentError
		switch {
		case errors.Is(err, contract.ErrMissingFunction):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &argErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid argument", "details": argErr.Error()})
		case errors.As(err, &upstream):
			c.JSON(upstream.Status, gin.H{
				"error":   fmt.Sprintf("Failed to call %s: %d", req.FunctionName, upstream.Status),
				"details": upstream.Body,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
		}
		return
	}

	if !res.Okay {
		c.JSON(http.StatusOK, gin.H{"okay": false, "error": res.Cause})
		return
	}
	if res.DecodeError != nil {
		c.JSON(http.StatusOK, gin.H{"okay": true, "result": res.Result, "decodeError": res.DecodeError.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"okay": true, "result": res.Result, "value": clarity.ToJSON(res.Value)})
}

// TxOptionsRequest is the body of POST /api/tx-options
type TxOptionsRequest struct {
	Type           string      `json:"type"`
	Quantity       int         `json:"quantity"`
	UserAddress    string      `json:"userAddress"`
	PricePerTicket json.Number `json:"pricePerTicket"`
	// PotBalance is optional for draw-winner; the latest snapshot is used
	// when absent
	PotBalance json.Number `json:"potBalance"`
}

func parseAmount(n json.Number) (*big.Int, bool) {
	if n == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// TxOptions handles POST /api/tx-options
func (h *Handler) TxOptions(c *gin.Context) {
	var req TxOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameters"})
		return
	}

	switch req.Type {
	case txbuilder.FnBuyTicket:
		price, ok := parseAmount(req.PricePerTicket)
		if !ok || req.UserAddress == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameters"})
			return
		}
		d, err := txbuilder.BuyTickets(req.UserAddress, req.Quantity, price)
		if err != nil {
			h.logger.Debug("rejected tx options", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameters"})
			return
		}
		c.JSON(http.StatusOK, d)

	case txbuilder.FnDrawWinner:
		pot, ok := parseAmount(req.PotBalance)
		if !ok && h.fetcher != nil {
			if snap := h.fetcher.State("").Snapshot; snap != nil {
				pot = snap.PotBalance
			}
		}
		c.JSON(http.StatusOK, txbuilder.DrawWinner(h.contractID(), pot))

	case txbuilder.FnClaimPrize:
		c.JSON(http.StatusOK, txbuilder.ClaimPrize())

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown transaction type"})
	}
}

// GetRaffle handles GET /api/raffle
func (h *Handler) GetRaffle(c *gin.Context) {
	address := c.Query("address")
	if err := h.fetcher.Touch(address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state := h.fetcher.State(address)
	if !state.Attempted {
		// first request for this address; later ones are served by the
		// background refresh
		_, _ = h.fetcher.Refresh(c.Request.Context(), address)
		state = h.fetcher.State(address)
	}

	c.JSON(http.StatusOK, newRaffleView(state, address, h.config.ContractAddress))
}

// RefreshRaffle handles POST /api/raffle/refresh, sent after a transaction
// completes. The caller's view is refetched synchronously and every other
// active view on the next background cycle.
func (h *Handler) RefreshRaffle(c *gin.Context) {
	address := c.Query("address")
	if err := h.fetcher.Touch(address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := h.fetcher.Refresh(c.Request.Context(), address)
	h.fetcher.Trigger()
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	c.JSON(status, newRaffleView(h.fetcher.State(address), address, h.config.ContractAddress))
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	info, err := h.nodeInfo.GetInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"network":     h.config.Network,
		"stacksTip":   info.StacksTipHeight,
		"burnBlock":   info.BurnBlockHeight,
		"generation":  h.snapshotGeneration(),
		"lastRefresh": h.lastRefresh(),
	})
}

func (h *Handler) snapshotGeneration() uint64 {
	if snap := h.fetcher.State("").Snapshot; snap != nil {
		return snap.Generation
	}
	return 0
}

func (h *Handler) lastRefresh() any {
	if snap := h.fetcher.State("").Snapshot; snap != nil {
		return snap.FetchedAt
	}
	return nil
}
