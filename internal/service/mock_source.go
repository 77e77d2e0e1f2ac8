package service

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gtrade-dashboard/internal/resolver"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

var mockPairNames = []string{"BTC/USD", "ETH/USD", "LINK/USD", "DOGE/USD", "MATIC/USD", "SOL/USD"}

// MockSource produces deterministic synthetic data for demos and tests.
// Each wallet gets a fixed profile derived from its id; funding rates drift
// with every read so trends move.
type MockSource struct {
	pairs          []types.TrackedPair
	initialFunding decimal.Decimal
	historySize    int
	now            func() time.Time

	mu   sync.Mutex
	tick int
}

// NewMockSource creates a mock data source
func NewMockSource(pairs []types.TrackedPair, initialFunding decimal.Decimal, historySize int) *MockSource {
	if historySize <= 0 {
		historySize = 20
	}
	return &MockSource{
		pairs:          pairs,
		initialFunding: initialFunding,
		historySize:    historySize,
		now:            time.Now,
	}
}

// Kind identifies the data source
func (m *MockSource) Kind() types.SourceKind {
	return types.SourceMock
}

// walletRand returns a generator seeded by the wallet id and a stream name
func walletRand(wallet types.StrategyWallet, stream string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(wallet.ID))
	_, _ = h.Write([]byte(wallet.Address))
	seed := h.Sum64()
	h.Reset()
	_, _ = h.Write([]byte(stream))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// Balance returns initial funding plus the wallet's synthetic realized PnL
func (m *MockSource) Balance(_ context.Context, wallet types.StrategyWallet) (decimal.Decimal, bool) {
	history := m.history(wallet)
	balance := m.initialFunding
	for _, rec := range history {
		balance = balance.Add(rec.PnL)
	}
	return balance, true
}

// OpenPositions returns zero or one synthetic open trade
func (m *MockSource) OpenPositions(_ context.Context, wallet types.StrategyWallet) ([]resolver.TradeRecord, bool) {
	rng := walletRand(wallet, "open")
	if rng.IntN(3) == 0 {
		return []resolver.TradeRecord{}, true
	}

	pairIndex := rng.IntN(len(mockPairNames))
	size := decimal.NewFromInt(int64(500 + rng.IntN(4500)))
	entry := decimal.NewFromFloat(mockPrice(pairIndex, rng)).Round(2)
	leverage := decimal.NewFromInt(int64(2 + rng.IntN(24)))

	trade := types.Trade{
		ID:         types.TradeID(wallet.Address, uint64(pairIndex), 0),
		Strategy:   wallet.ID,
		Pair:       mockPairNames[pairIndex],
		Type:       types.DirectionFromBuy(rng.IntN(2) == 0),
		Size:       size.InexactFloat64(),
		Timestamp:  m.now().UTC().Truncate(time.Minute),
		Status:     types.TradeOpen,
		EntryPrice: floatOf(entry),
		Leverage:   floatOf(leverage),
	}
	return []resolver.TradeRecord{{
		Trade:     trade,
		PairIndex: uint64(pairIndex),
		Size:      size,
		PnL:       decimal.Zero,
		Leverage:  leverage,
		Entry:     entry,
	}}, true
}

// TradeHistory returns synthetic closed trades, newest first
func (m *MockSource) TradeHistory(_ context.Context, wallet types.StrategyWallet) ([]resolver.TradeRecord, bool) {
	return m.history(wallet), true
}

func (m *MockSource) history(wallet types.StrategyWallet) []resolver.TradeRecord {
	rng := walletRand(wallet, "history")
	// Anchor on the hour so repeated reads within it agree
	anchor := m.now().UTC().Truncate(time.Hour)
	count := m.historySize
	if count > 5 {
		count = 5 + rng.IntN(count-4)
	}

	records := make([]resolver.TradeRecord, 0, count)
	for i := 0; i < count; i++ {
		pairIndex := rng.IntN(len(mockPairNames))
		size := decimal.NewFromInt(int64(200 + rng.IntN(4800)))
		entry := mockPrice(pairIndex, rng)
		move := (rng.Float64() - 0.45) * 0.04
		buy := rng.IntN(2) == 0
		exit := entry * (1 + move)
		direction := 1.0
		if !buy {
			direction = -1
		}
		pnl := size.Mul(decimal.NewFromFloat(move * direction)).Round(2)
		leverage := decimal.NewFromInt(int64(2 + rng.IntN(24)))
		closedAt := anchor.Add(-time.Duration(i*7+1+rng.IntN(6)) * time.Hour)

		entryDec := decimal.NewFromFloat(entry).Round(2)
		trade := types.Trade{
			ID:         types.TradeID(wallet.Address, uint64(pairIndex), uint64(count-i)),
			Strategy:   wallet.ID,
			Pair:       mockPairNames[pairIndex],
			Type:       types.DirectionFromBuy(buy),
			Size:       size.InexactFloat64(),
			PnL:        pnl.InexactFloat64(),
			Timestamp:  closedAt,
			Status:     types.TradeClosed,
			EntryPrice: floatOf(entryDec),
			ExitPrice:  floatOf(decimal.NewFromFloat(exit).Round(2)),
			Leverage:   floatOf(leverage),
		}
		records = append(records, resolver.TradeRecord{
			Trade:     trade,
			PairIndex: uint64(pairIndex),
			Size:      size,
			PnL:       pnl,
			Leverage:  leverage,
			Entry:     entryDec,
		})
	}
	return records
}

// FundingRates returns drifting synthetic rates for every tracked pair
func (m *MockSource) FundingRates(_ context.Context) ([]resolver.RateRecord, []string) {
	m.mu.Lock()
	m.tick++
	tick := m.tick
	m.mu.Unlock()

	rates := make([]resolver.RateRecord, 0, len(m.pairs))
	for i, p := range m.pairs {
		base := 0.5 + float64(i)*0.35
		drift := 0.25 * math.Sin(float64(tick)/3+float64(i))
		long := decimal.NewFromFloat(base + drift).Round(4)
		short := decimal.NewFromFloat(-(base - drift) / 2).Round(4)
		if i%2 == 1 {
			long, short = short, long
		}
		rates = append(rates, resolver.RateRecord{Pair: p.Name, LongRate: long, ShortRate: short})
	}
	return rates, nil
}

var mockBasePrices = []float64{64000, 3200, 14.5, 0.12, 0.55, 145}

func mockPrice(pairIndex int, rng *rand.Rand) float64 {
	base := mockBasePrices[pairIndex%len(mockBasePrices)]
	return base * (0.9 + rng.Float64()*0.2)
}

func floatOf(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}
