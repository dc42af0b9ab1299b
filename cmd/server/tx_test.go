package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/config"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/txbuilder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"

type stubSigner struct {
	txID string
	err  error
}

func (s stubSigner) Sign(context.Context, txbuilder.Request) (string, error) {
	return s.txID, s.err
}

func setupRemote(t *testing.T) chan string {
	t.Helper()
	hits := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.Method + " " + r.URL.Path + "?" + r.URL.RawQuery
		_, _ = w.Write([]byte(`{"snapshot":null,"loading":false}`))
	}))
	t.Cleanup(server.Close)

	cfg = &config.Config{
		Network:         config.NetworkMainnet,
		ContractAddress: "SP1ZGGS886YCZHMFXJR1EK61ZP34FNWNSX32N685T",
		ContractName:    "daily-raffle-v2",
		UpstreamTimeout: time.Second,
	}
	logger = zap.NewNop()
	txRemote = server.URL
	t.Cleanup(func() { txRemote = "" })
	return hits
}

func TestSignedTransactionRefreshesRemote(t *testing.T) {
	hits := setupRemote(t)
	ctx := context.Background()

	submitter := txbuilder.NewSubmitter(stubSigner{txID: "0xabc"}, cfg.Network, cfg.ContractAddress, cfg.ContractName,
		afterSubmit(ctx, testUser), logger)
	require.NoError(t, submitter.Submit(ctx, txbuilder.ClaimPrize(), txbuilder.Callbacks{}))

	require.Len(t, hits, 1)
	assert.Equal(t, "POST /api/raffle/refresh?address="+testUser, <-hits)
}

func TestCancelledTransactionSkipsRefresh(t *testing.T) {
	hits := setupRemote(t)
	ctx := context.Background()

	submitter := txbuilder.NewSubmitter(stubSigner{err: txbuilder.ErrCancelled}, cfg.Network, cfg.ContractAddress, cfg.ContractName,
		afterSubmit(ctx, testUser), logger)
	require.NoError(t, submitter.Submit(ctx, txbuilder.ClaimPrize(), txbuilder.Callbacks{}))

	assert.Empty(t, hits)
}
