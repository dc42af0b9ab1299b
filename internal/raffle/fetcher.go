package raffle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/clarity"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/metrics"

	EventBus "github.com/asaskevich/EventBus"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Read-only contract functions
const (
	FnCurrentRound    = "get-current-round"
	FnPotBalance      = "get-pot-balance"
	FnTicketsSold     = "get-tickets-sold"
	FnUniquePlayers   = "get-unique-players"
	FnTicketPrice     = "get-ticket-price"
	FnEstimatedPrize  = "get-estimated-prize"
	FnCanDraw         = "can-draw"
	FnBlocksUntilDraw = "get-blocks-until-draw"
	FnRoundInfo       = "get-round-info"
	FnUserTicketCount = "get-user-ticket-count"
	FnUnclaimedPrize  = "get-unclaimed-prize"
)

// TopicSnapshot is published with the *Snapshot after every accepted refresh
const TopicSnapshot = "raffle:snapshot"

// FetchErrorMessage is the user-facing text of a failed mandatory batch
const FetchErrorMessage = "Failed to fetch raffle data. Contract may not be deployed."

const (
	defaultRoundCacheSize = 256
	defaultMaxWatched     = 1024
)

// mandatory is the fixed batch, in snapshot field order
var mandatory = []string{
	FnCurrentRound,
	FnPotBalance,
	FnTicketsSold,
	FnUniquePlayers,
	FnTicketPrice,
	FnEstimatedPrize,
	FnCanDraw,
	FnBlocksUntilDraw,
}

// ReadOnlyFunctions lists every contract function the fetcher queries
func ReadOnlyFunctions() []string {
	fns := append([]string(nil), mandatory...)
	return append(fns, FnRoundInfo, FnUserTicketCount, FnUnclaimedPrize)
}

// Caller issues one read-only query and returns the decoded value
type Caller interface {
	Query(ctx context.Context, functionName string, args ...clarity.FunctionArgument) (clarity.Value, error)
}

// ErrInvalidAddress is returned by Watch for an unparsable principal
var ErrInvalidAddress = errors.New("invalid principal address")

// State is what the view layer renders for one address
type State struct {
	Snapshot *Snapshot `json:"snapshot"`
	Loading  bool      `json:"loading"`
	Error    string    `json:"error,omitempty"`
	// Attempted is set once any fetch for the address has started
	Attempted bool `json:"-"`
}

type entry struct {
	mu        sync.Mutex
	latest    uint64
	inflight  int
	attempted bool
	snapshot  *Snapshot
	err       string

	subscribers int
	lastSeen    time.Time
}

// Fetcher builds snapshots and keeps the watched ones refreshed
type Fetcher struct {
	caller   Caller
	interval time.Duration
	idleTTL  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics
	bus      EventBus.Bus

	generation uint64
	rounds     *lru.Cache
	entries    *lru.Cache
	anonymous  *entry
	trigger    chan struct{}
}

// Options configures a Fetcher
type Options struct {
	Interval time.Duration
	// IdleTTL is how long an address without subscribers keeps being
	// refreshed after it was last requested. Defaults to Interval.
	IdleTTL    time.Duration
	MaxWatched int
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Bus        EventBus.Bus
}

// NewFetcher creates a fetcher on top of caller
func NewFetcher(caller Caller, opts Options) (*Fetcher, error) {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = opts.Interval
	}
	if opts.MaxWatched <= 0 {
		opts.MaxWatched = defaultMaxWatched
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = EventBus.New()
	}

	rounds, err := lru.New(defaultRoundCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create round cache: %w", err)
	}
	entries, err := lru.New(opts.MaxWatched)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch list: %w", err)
	}

	return &Fetcher{
		caller:    caller,
		interval:  opts.Interval,
		idleTTL:   opts.IdleTTL,
		now:       time.Now,
		logger:    opts.Logger.Named("raffle"),
		metrics:   opts.Metrics,
		bus:       opts.Bus,
		rounds:    rounds,
		entries:   entries,
		anonymous: &entry{},
		trigger:   make(chan struct{}, 1),
	}, nil
}

// Bus returns the event bus snapshots are published on
func (f *Fetcher) Bus() EventBus.Bus {
	return f.bus
}

// Fetch builds one snapshot. A failure in the mandatory batch fails the
// whole fetch; the round record and the user-scoped queries are best effort.
func (f *Fetcher) Fetch(ctx context.Context, userAddress string) (*Snapshot, error) {
	results := make([]clarity.Value, len(mandatory))
	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range mandatory {
		i, fn := i, fn
		g.Go(func() error {
			v, err := f.caller.Query(gctx, fn)
			if err != nil {
				return fmt.Errorf("%s: %w", fn, err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{FetchedAt: time.Now().UTC(), UserAddress: userAddress}
	uints := []**big.Int{
		&snap.CurrentRound,
		&snap.PotBalance,
		&snap.TicketsSold,
		&snap.UniquePlayers,
		&snap.TicketPrice,
		&snap.EstimatedPrize,
	}
	for i, dst := range uints {
		n, err := asUint(results[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", mandatory[i], err)
		}
		*dst = n
	}
	canDraw, err := asBool(results[6])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FnCanDraw, err)
	}
	snap.CanDraw = canDraw
	if snap.BlocksUntilDraw, err = asUint(results[7]); err != nil {
		return nil, fmt.Errorf("%s: %w", FnBlocksUntilDraw, err)
	}

	var wg sync.WaitGroup
	if snap.CurrentRound.Cmp(big.NewInt(1)) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap.LastWinner = f.lastWinner(ctx, new(big.Int).Sub(snap.CurrentRound, big.NewInt(1)))
		}()
	}

	snap.UserTickets = new(big.Int)
	if userAddress != "" {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v, err := f.caller.Query(ctx, FnUserTicketCount, clarity.PrincipalArg(userAddress))
			if err == nil {
				var n *big.Int
				if n, err = asUint(v); err == nil {
					snap.UserTickets = n
					return
				}
			}
			f.logger.Info("could not fetch user tickets", zap.String("address", userAddress), zap.Error(err))
		}()
		go func() {
			defer wg.Done()
			v, err := f.caller.Query(ctx, FnUnclaimedPrize, clarity.PrincipalArg(userAddress))
			if err == nil {
				var prize *UnclaimedPrize
				if prize, err = parseUnclaimed(v); err == nil {
					snap.UnclaimedPrize = prize
					return
				}
			}
			f.logger.Info("could not fetch unclaimed prize", zap.String("address", userAddress), zap.Error(err))
		}()
	}
	wg.Wait()

	return snap, nil
}

// lastWinner reads a finished round record. Drawn rounds never change, so
// they are served from the round cache after the first read.
func (f *Fetcher) lastWinner(ctx context.Context, round *big.Int) *Winner {
	key := round.String()
	if cached, ok := f.rounds.Get(key); ok {
		return cached.(*Winner)
	}

	v, err := f.caller.Query(ctx, FnRoundInfo, clarity.UintArg(round))
	if err != nil {
		f.logger.Info("could not fetch last winner", zap.String("round", key), zap.Error(err))
		return nil
	}
	w, err := parseWinner(v, round)
	if err != nil {
		f.logger.Warn("unexpected round record", zap.String("round", key), zap.Error(err))
		return nil
	}
	if w != nil {
		f.rounds.Add(key, w)
	}
	return w
}

func (f *Fetcher) entry(address string, create bool) *entry {
	if address == "" {
		return f.anonymous
	}
	if e, ok := f.entries.Get(address); ok {
		return e.(*entry)
	}
	if !create {
		return nil
	}
	e := &entry{}
	if existing, ok, _ := f.entries.PeekOrAdd(address, e); ok {
		return existing.(*entry)
	}
	return e
}

func (f *Fetcher) track(address string, subscribe bool) error {
	if address == "" {
		return nil
	}
	if _, err := clarity.ParsePrincipal(address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	e := f.entry(address, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = f.now()
	if subscribe {
		e.subscribers++
	}
	return nil
}

// Touch marks address as requested. It is refreshed in the background until
// it has been idle for IdleTTL.
func (f *Fetcher) Touch(address string) error {
	return f.track(address, false)
}

// Watch registers a live subscriber for address. The address is refreshed
// on every cycle until each Watch is matched by an Unwatch.
func (f *Fetcher) Watch(address string) error {
	return f.track(address, true)
}

// Unwatch releases one subscriber of address. Without subscribers the
// address goes idle and drops out after IdleTTL.
func (f *Fetcher) Unwatch(address string) {
	e := f.entry(address, false)
	if e == nil || e == f.anonymous {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subscribers > 0 {
		e.subscribers--
	}
	e.lastSeen = f.now()
}

// State returns the current view for address
func (f *Fetcher) State(address string) State {
	e := f.entry(address, false)
	if e == nil {
		return State{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Snapshot: e.snapshot, Loading: e.inflight > 0, Error: e.err, Attempted: e.attempted}
}

// due reports whether e still needs background refreshes
func (f *Fetcher) due(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscribers > 0 || f.now().Sub(e.lastSeen) < f.idleTTL
}

// Refresh fetches and publishes a snapshot for address. Every call takes a
// new generation; an outcome older than the one already applied is dropped.
// On failure the previous snapshot stays published next to the error.
func (f *Fetcher) Refresh(ctx context.Context, address string) (*Snapshot, error) {
	e := f.entry(address, true)
	gen := atomic.AddUint64(&f.generation, 1)

	e.mu.Lock()
	e.inflight++
	e.attempted = true
	e.mu.Unlock()

	snap, err := f.Fetch(ctx, address)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--

	if gen < e.latest {
		f.metrics.ObserveFetch("stale")
		f.logger.Debug("dropping stale snapshot", zap.Uint64("generation", gen), zap.Uint64("latest", e.latest))
		if err != nil {
			return nil, err
		}
		return e.snapshot, nil
	}
	e.latest = gen

	if err != nil {
		f.metrics.ObserveFetch("error")
		f.logger.Error("error fetching raffle data", zap.String("address", address), zap.Error(err))
		e.err = FetchErrorMessage
		return nil, err
	}

	published := snap.withGeneration(gen)
	e.snapshot = published
	e.err = ""
	f.metrics.ObserveFetch("ok")
	if address == "" {
		pot, _ := new(big.Float).SetInt(published.PotBalance).Float64()
		f.metrics.SetSnapshot(gen, pot)
	}
	f.bus.Publish(TopicSnapshot, published)
	return published, nil
}

// RefreshAll refreshes the anonymous snapshot and every address that has a
// subscriber or was requested within IdleTTL. Idle addresses are dropped.
func (f *Fetcher) RefreshAll(ctx context.Context) {
	addresses := []string{""}
	for _, k := range f.entries.Keys() {
		v, ok := f.entries.Peek(k)
		if !ok {
			continue
		}
		if !f.due(v.(*entry)) {
			f.entries.Remove(k)
			continue
		}
		addresses = append(addresses, k.(string))
	}

	var wg sync.WaitGroup
	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			_, _ = f.Refresh(ctx, addr)
		}(addr)
	}
	wg.Wait()
}

// Trigger asks Run for an immediate refresh. Requests arriving while one is
// already pending are coalesced.
func (f *Fetcher) Trigger() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes immediately, then on every interval and on Trigger, until
// ctx is done
func (f *Fetcher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.RefreshAll(ctx)
		case <-f.trigger:
			f.RefreshAll(ctx)
		}
	}
}
