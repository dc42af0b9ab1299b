package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/config"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/contract"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/metrics"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/raffle"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/rpc"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "SP1ZGGS886YCZHMFXJR1EK61ZP34FNWNSX32N685T"
	testUser     = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
)

func uintHex(n uint64) string {
	return fmt.Sprintf("0x01%032x", n)
}

type upstreamReply struct {
	status int
	body   string
}

// fakeHiro emulates the hosted read-only API
type fakeHiro struct {
	mu      sync.Mutex
	replies map[string]upstreamReply
	apiKeys []string
	calls   map[string]int
}

func newFakeHiro() *fakeHiro {
	ok := func(hex string) upstreamReply {
		return upstreamReply{status: http.StatusOK, body: `{"okay":true,"result":"` + hex + `"}`}
	}
	return &fakeHiro{replies: map[string]upstreamReply{
		raffle.FnCurrentRound:    ok(uintHex(1)),
		raffle.FnPotBalance:      ok(uintHex(5000000)),
		raffle.FnTicketsSold:     ok(uintHex(5)),
		raffle.FnUniquePlayers:   ok(uintHex(2)),
		raffle.FnTicketPrice:     ok(uintHex(1000000)),
		raffle.FnEstimatedPrize:  ok(uintHex(4750000)),
		raffle.FnCanDraw:         ok("0x03"),
		raffle.FnBlocksUntilDraw: ok(uintHex(0)),
		raffle.FnUserTicketCount: ok(uintHex(3)),
		raffle.FnUnclaimedPrize:  ok("0x09"),
	}, calls: map[string]int{}}
}

func (f *fakeHiro) callsTo(fn string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fn]
}

func (f *fakeHiro) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeHiro) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = map[string]int{}
}

func (f *fakeHiro) set(fn string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[fn] = upstreamReply{status: status, body: body}
}

func (f *fakeHiro) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get(rpc.APIKeyHeader))

	if r.URL.Path == "/v2/info" {
		_, _ = w.Write([]byte(`{"network_id":1,"stacks_tip_height":150000,"burn_block_height":870000}`))
		return
	}

	fn := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.calls[fn]++
	reply, ok := f.replies[fn]
	if !ok {
		reply = upstreamReply{status: http.StatusOK, body: `{"okay":false,"cause":"Unchecked(NoSuchPublicFunction)"}`}
	}
	w.WriteHeader(reply.status)
	_, _ = w.Write([]byte(reply.body))
}

type testEnv struct {
	hiro    *fakeHiro
	fetcher *raffle.Fetcher
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, raffle.Options{Interval: time.Hour})
}

func newTestEnvWith(t *testing.T, opts raffle.Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hiro := newFakeHiro()
	upstream := httptest.NewServer(hiro)
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Network:         config.NetworkMainnet,
		ContractAddress: testContract,
		ContractName:    "daily-raffle-v2",
		CORSOrigins:     []string{"*"},

		WalletConnectProjectID: "test-project",
	}
	m := metrics.New(raffle.ReadOnlyFunctions()...)
	client := rpc.NewClient(upstream.URL, "test-key", 5*time.Second)
	svc := contract.NewService(client, cfg.Network, cfg.ContractAddress, cfg.ContractName, nil, m)
	opts.Metrics = m
	fetcher, err := raffle.NewFetcher(svc, opts)
	require.NoError(t, err)
	stream, err := NewStream(fetcher.Bus(), fetcher, cfg.ContractAddress, nil)
	require.NoError(t, err)

	handler := NewHandler(client, svc, fetcher, cfg, nil)
	router := WithCORS(SetupRouter(handler, stream, m, nil), cfg.CORSOrigins)
	return &testEnv{hiro: hiro, fetcher: fetcher, router: router}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestCallContractSuccess(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/api/contract", `{"functionName":"get-pot-balance"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["okay"])
	assert.Equal(t, "0x01000000000000000000000000004c4b40", out["result"])
	assert.Equal(t, "5000000", out["value"])
	assert.Contains(t, env.hiro.apiKeys, "test-key")
}

func TestCallContractWithArgs(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/api/contract",
		`{"functionName":"get-user-ticket-count","args":[{"type":"principal","value":"`+testUser+`"}],"senderAddress":"`+testUser+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", out["value"])
}

func TestCallContractUpstreamError(t *testing.T) {
	env := newTestEnv(t)
	env.hiro.set("get-pot-balance", http.StatusInternalServerError, "upstream exploded")

	w, out := env.do(t, http.MethodPost, "/api/contract", `{"functionName":"get-pot-balance"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to call get-pot-balance: 500", out["error"])
	assert.Equal(t, "upstream exploded", out["details"])
}

func TestCallContractValidation(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/api/contract", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "functionName is required", out["error"])

	w, out = env.do(t, http.MethodPost, "/api/contract", `{"functionName":"get-user-ticket-count","args":[{"type":"principal","value":"nope"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid argument", out["error"])

	w, _ = env.do(t, http.MethodPost, "/api/contract", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallContractRejectedCall(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/api/contract", `{"functionName":"get-nothing"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["okay"])
	assert.Equal(t, "Unchecked(NoSuchPublicFunction)", out["error"])
}

func TestCallContractDecodeFallback(t *testing.T) {
	env := newTestEnv(t)
	env.hiro.set("get-pot-balance", http.StatusOK, `{"okay":true,"result":"0xff"}`)

	w, out := env.do(t, http.MethodPost, "/api/contract", `{"functionName":"get-pot-balance"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["okay"])
	assert.Equal(t, "0xff", out["result"])
	assert.NotEmpty(t, out["decodeError"])
	assert.NotContains(t, out, "value")
}

func TestContractInfo(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodGet, "/api/contract", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"status":          "ok",
		"network":         "mainnet",
		"contractAddress": testContract,
		"contractName":    "daily-raffle-v2",

		"walletConnectProjectId": "test-project",
	}, out)
}

func TestTxOptionsBuyTickets(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/api/tx-options",
		`{"type":"buy-ticket","quantity":5,"userAddress":"`+testUser+`","pricePerTicket":1000000}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "buy-tickets", out["functionName"])
	assert.Equal(t, []any{"0x0100000000000000000000000000000005"}, out["functionArgs"])
	assert.Equal(t, float64(1), out["postConditionMode"])
	assert.Equal(t, []any{map[string]any{
		"type": "stx-postcondition", "address": testUser, "condition": "lte", "amount": "5000000",
	}}, out["postConditions"])

	w, out = env.do(t, http.MethodPost, "/api/tx-options",
		`{"type":"buy-ticket","quantity":1,"userAddress":"`+testUser+`","pricePerTicket":1000000}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "buy-ticket", out["functionName"])
	assert.Equal(t, []any{}, out["functionArgs"])
}

func TestTxOptionsValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"type":"buy-ticket","quantity":0,"userAddress":"` + testUser + `","pricePerTicket":1000000}`,
		`{"type":"buy-ticket","quantity":2,"pricePerTicket":1000000}`,
		`{"type":"buy-ticket","quantity":2,"userAddress":"` + testUser + `"}`,
		`{"type":"buy-ticket","quantity":2,"userAddress":"` + testUser + `","pricePerTicket":-1}`,
		`{"type":"buy-ticket","quantity":"two"}`,
	} {
		w, out := env.do(t, http.MethodPost, "/api/tx-options", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "Invalid parameters", out["error"], body)
	}

	w, out := env.do(t, http.MethodPost, "/api/tx-options", `{"type":"sell-ticket"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown transaction type", out["error"])
}

func TestTxOptionsDrawAndClaim(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodPost, "/api/tx-options", `{"type":"draw-winner","potBalance":"5000000"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "draw-winner", out["functionName"])
	assert.Equal(t, float64(2), out["postConditionMode"])
	assert.Equal(t, []any{map[string]any{
		"type": "stx-postcondition", "address": testContract + ".daily-raffle-v2", "condition": "gte", "amount": "250000",
	}}, out["postConditions"])

	w, out = env.do(t, http.MethodPost, "/api/tx-options", `{"type":"claim-prize"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "claim-prize", out["functionName"])
	assert.Equal(t, []any{}, out["postConditions"])
}

func TestGetRaffle(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodGet, "/api/raffle?address="+testUser, "")
	require.Equal(t, http.StatusOK, w.Code)

	snap := out["snapshot"].(map[string]any)
	assert.Equal(t, "5000000", snap["potBalance"])
	assert.Equal(t, "3", snap["userTickets"])
	assert.Nil(t, snap["lastWinner"])
	assert.Nil(t, snap["unclaimedPrize"])

	disp := out["display"].(map[string]any)
	assert.Equal(t, "5.00", disp["potBalance"])
	assert.Equal(t, "4.75", disp["prizeAfterFee"])
	assert.Equal(t, "SP2J6ZY4...RV9EJ7", disp["userAddress"])
	assert.Equal(t, false, disp["canDraw"])
}

func TestGetRaffleOwnerCanDraw(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodGet, "/api/raffle?address="+testContract, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["display"].(map[string]any)["canDraw"])
}

func TestGetRaffleInvalidAddress(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/raffle?address=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshRaffleKeepsPreviousSnapshot(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/raffle/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)

	env.hiro.set(raffle.FnCanDraw, http.StatusServiceUnavailable, "down")
	w, out := env.do(t, http.MethodPost, "/api/raffle/refresh", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, raffle.FetchErrorMessage, out["error"])
	assert.Equal(t, "5000000", out["snapshot"].(map[string]any)["potBalance"])
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, float64(150000), out["stacksTip"])
}

func TestRequestIDAndCORS(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/contract", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodOptions, "/api/contract", nil)
	req.Header.Set("Origin", "https://raffle.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/contract", `{"functionName":"get-pot-balance"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "raffle_upstream_calls_total")
	assert.Contains(t, rec.Body.String(), `function="get-pot-balance"`)
}

func TestMetricsUnknownFunctionsShareOneSeries(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/contract", `{"functionName":"junk-1"}`)
	env.do(t, http.MethodPost, "/api/contract", `{"functionName":"junk-2"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "junk-1")
	assert.NotContains(t, body, "junk-2")
	assert.Contains(t, body, `raffle_upstream_calls_total{function="other",outcome="call_failed"} 2`)
}

func testAddress(i int) string {
	var hash [20]byte
	hash[0] = 0xa0
	hash[19] = byte(i)
	return clarity.C32Address(clarity.VersionMainnetSingleSig, hash)
}

func TestGetRaffleFetchesOnlyOnFirstRequest(t *testing.T) {
	env := newTestEnv(t)
	env.hiro.set(raffle.FnCanDraw, http.StatusServiceUnavailable, "down")

	for i := 0; i < 3; i++ {
		w, out := env.do(t, http.MethodGet, "/api/raffle", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, out["snapshot"])
		assert.Equal(t, raffle.FetchErrorMessage, out["error"])
	}
	assert.Equal(t, 1, env.hiro.callsTo(raffle.FnCanDraw))
}

func TestIdleAddressesLeaveRefreshCycle(t *testing.T) {
	env := newTestEnvWith(t, raffle.Options{Interval: time.Hour, IdleTTL: time.Millisecond})

	for i := 0; i < 50; i++ {
		w, _ := env.do(t, http.MethodGet, "/api/raffle?address="+testAddress(i), "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	time.Sleep(10 * time.Millisecond)

	env.hiro.resetCalls()
	env.fetcher.RefreshAll(context.Background())
	// the anonymous snapshot's mandatory batch only
	assert.Equal(t, 8, env.hiro.totalCalls())
	assert.Zero(t, env.hiro.callsTo(raffle.FnUserTicketCount))
}

func TestRefreshRaffleTriggersBackgroundRefresh(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.fetcher.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	potOf := func() string {
		if snap := env.fetcher.State("").Snapshot; snap != nil {
			return snap.PotBalance.String()
		}
		return ""
	}
	require.Eventually(t, func() bool { return potOf() == "5000000" }, 2*time.Second, 10*time.Millisecond)

	env.hiro.set(raffle.FnPotBalance, http.StatusOK, `{"okay":true,"result":"`+uintHex(6000000)+`"}`)
	w, out := env.do(t, http.MethodPost, "/api/raffle/refresh?address="+testUser, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "6000000", out["snapshot"].(map[string]any)["potBalance"])

	assert.Eventually(t, func() bool { return potOf() == "6000000" }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketStream(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/raffle/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// nothing fetched yet
	var first map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Nil(t, first["snapshot"])

	env.hiro.set(raffle.FnPotBalance, http.StatusOK, `{"okay":true,"result":"`+uintHex(7000000)+`"}`)
	env.fetcher.RefreshAll(context.Background())

	var next map[string]any
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "7000000", next["snapshot"].(map[string]any)["potBalance"])
	assert.Equal(t, "7.00", next["display"].(map[string]any)["potBalance"])
}

func TestWebSocketDisconnectReleasesAddress(t *testing.T) {
	env := newTestEnvWith(t, raffle.Options{Interval: time.Hour, IdleTTL: time.Millisecond})
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/raffle/ws?address=" + testUser
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var first map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))

	// a live subscriber outlasts the idle window
	time.Sleep(10 * time.Millisecond)
	env.hiro.resetCalls()
	env.fetcher.RefreshAll(context.Background())
	assert.Equal(t, 1, env.hiro.callsTo(raffle.FnUserTicketCount))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		env.hiro.resetCalls()
		env.fetcher.RefreshAll(context.Background())
		return env.hiro.callsTo(raffle.FnUserTicketCount) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
