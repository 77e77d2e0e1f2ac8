// Package service builds dashboard snapshots from a data source.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/resolver"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTradeCap = 50
	defaultLeverage = 10
	trendEpsilon    = 1e-9
	hundred         = 100
)

// Degradation sources
const (
	degradedBalance       = "balance"
	degradedOpenPositions = "open_positions"
	degradedTradeHistory  = "trade_history"
	degradedFundingRate   = "funding_rate"
)

// AggregatorConfig holds the immutable inputs of the aggregator
type AggregatorConfig struct {
	Wallets        []types.StrategyWallet
	TradeCap       int
	PnLRetention   int
	InitialFunding decimal.Decimal
}

// Aggregator fans out to the data source for every wallet and merges the
// results into one snapshot. The previous funding observation per pair and
// the daily PnL series live here; both are only touched by one Aggregate
// call at a time.
type Aggregator struct {
	source DataSource
	cfg    AggregatorConfig
	now    func() time.Time

	mu        sync.Mutex
	prevRates map[string]decimal.Decimal
	series    *PnLSeries
}

// NewAggregator creates an aggregator over source
func NewAggregator(source DataSource, cfg AggregatorConfig) (*Aggregator, error) {
	if source == nil {
		return nil, fmt.Errorf("data source cannot be nil")
	}
	if len(cfg.Wallets) == 0 {
		return nil, fmt.Errorf("at least one strategy wallet is required")
	}
	if cfg.TradeCap <= 0 {
		cfg.TradeCap = defaultTradeCap
	}

	wallets := make([]types.StrategyWallet, len(cfg.Wallets))
	copy(wallets, cfg.Wallets)
	cfg.Wallets = wallets

	return &Aggregator{
		source:    source,
		cfg:       cfg,
		now:       time.Now,
		prevRates: make(map[string]decimal.Decimal),
		series:    NewPnLSeries(cfg.PnLRetention),
	}, nil
}

// Source returns the data source kind
func (a *Aggregator) Source() types.SourceKind {
	return a.source.Kind()
}

// walletResult is everything read for one wallet
type walletResult struct {
	balance   decimal.Decimal
	balanceOK bool
	open      []resolver.TradeRecord
	openOK    bool
	history   []resolver.TradeRecord
	historyOK bool
}

// strategyTotals carries the exact win-rate weighting behind a Strategy record
type strategyTotals struct {
	winRate decimal.Decimal
	trades  int
}

// Aggregate runs one refresh cycle. It never fails: every source read that
// fails is replaced by its fallback and recorded in the snapshot's degraded list.
func (a *Aggregator) Aggregate(ctx context.Context) *types.Snapshot {
	logger := logging.FromContext(ctx).WithComponent("aggregator")
	start := a.now()

	results := make([]walletResult, len(a.cfg.Wallets))
	var (
		rates       []resolver.RateRecord
		failedPairs []string
	)

	var g errgroup.Group
	for i, w := range a.cfg.Wallets {
		res := &results[i]
		g.Go(func() error {
			res.balance, res.balanceOK = a.source.Balance(ctx, w)
			return nil
		})
		g.Go(func() error {
			res.open, res.openOK = a.source.OpenPositions(ctx, w)
			return nil
		})
		g.Go(func() error {
			res.history, res.historyOK = a.source.TradeHistory(ctx, w)
			return nil
		})
	}
	g.Go(func() error {
		rates, failedPairs = a.source.FundingRates(ctx)
		return nil
	})
	_ = g.Wait()

	snapshot := &types.Snapshot{
		Strategies:  make([]types.Strategy, 0, len(a.cfg.Wallets)),
		GeneratedAt: start.UTC(),
		Source:      a.source.Kind(),
		Degraded:    []types.Degradation{},
	}

	var (
		weighted    = decimal.Zero
		totalTrades int
		byStrategy  = make(map[string]float64, len(a.cfg.Wallets))
		allTrades   []types.Trade
	)

	for i, w := range a.cfg.Wallets {
		res := results[i]
		strategy, totals := a.buildStrategy(w, res)
		snapshot.Strategies = append(snapshot.Strategies, strategy)

		weighted = weighted.Add(totals.winRate.Mul(decimal.NewFromInt(int64(totals.trades))))
		totalTrades += totals.trades
		byStrategy[w.ID] = strategy.PnL

		for _, rec := range res.history {
			allTrades = append(allTrades, rec.Trade)
		}
		for _, rec := range res.open {
			allTrades = append(allTrades, rec.Trade)
		}

		if !res.balanceOK {
			snapshot.Degraded = append(snapshot.Degraded, types.Degradation{Source: degradedBalance, Wallet: w.ID})
		}
		if !res.openOK {
			snapshot.Degraded = append(snapshot.Degraded, types.Degradation{Source: degradedOpenPositions, Wallet: w.ID})
		}
		if !res.historyOK {
			snapshot.Degraded = append(snapshot.Degraded, types.Degradation{Source: degradedTradeHistory, Wallet: w.ID})
		}
	}
	for _, pair := range failedPairs {
		snapshot.Degraded = append(snapshot.Degraded, types.Degradation{Source: degradedFundingRate, Pair: pair})
	}

	snapshot.Trades = MergeTrades(allTrades, a.cfg.TradeCap)
	// Totals add up the published values so they match the strategies bit for bit
	for _, strategy := range snapshot.Strategies {
		snapshot.TotalBalance += strategy.Balance
		snapshot.TotalPnL += strategy.PnL
	}
	if totalTrades > 0 {
		snapshot.WinRate = weighted.Div(decimal.NewFromInt(int64(totalTrades))).InexactFloat64()
	}

	a.mu.Lock()
	snapshot.FundingRates = a.applyTrends(rates)
	snapshot.PnLHistory = a.series.Record(start, byStrategy, snapshot.TotalPnL)
	a.mu.Unlock()

	snapshot.BestLong, snapshot.BestShort = BestOpportunities(snapshot.FundingRates)
	snapshot.Stale = len(snapshot.Degraded) > 0

	entry := logger.WithFields(map[string]interface{}{
		"source":       snapshot.Source,
		"strategies":   len(snapshot.Strategies),
		"trades":       len(snapshot.Trades),
		"fundingRates": len(snapshot.FundingRates),
		"degraded":     len(snapshot.Degraded),
		"duration":     a.now().Sub(start).String(),
	})
	if snapshot.Stale {
		entry.Warn("Snapshot built with fallbacks")
	} else {
		entry.Info("Snapshot built")
	}
	return snapshot
}

func (a *Aggregator) buildStrategy(w types.StrategyWallet, res walletResult) (types.Strategy, strategyTotals) {
	closed := len(res.history)
	pnl := decimal.Zero
	winning := 0
	var latest time.Time
	for _, rec := range res.history {
		pnl = pnl.Add(rec.PnL)
		if rec.PnL.IsPositive() {
			winning++
		}
		if rec.Trade.Timestamp.After(latest) {
			latest = rec.Trade.Timestamp
		}
	}

	winRate := decimal.Zero
	if closed > 0 {
		winRate = decimal.NewFromInt(int64(winning)).Mul(decimal.NewFromInt(hundred)).Div(decimal.NewFromInt(int64(closed)))
	}

	var lastTrade *string
	switch {
	case closed > 0:
		s := latest.UTC().Format(time.RFC3339)
		lastTrade = &s
	case len(res.open) > 0:
		s := types.ActiveNow
		lastTrade = &s
	}

	var current *types.CurrentPosition
	if len(res.open) > 0 {
		first := res.open[0]
		leverage := first.Leverage
		if !leverage.IsPositive() {
			leverage = decimal.NewFromInt(defaultLeverage)
		}
		current = &types.CurrentPosition{
			Pair:       first.Trade.Pair,
			Direction:  first.Trade.Type,
			Size:       first.Size.InexactFloat64(),
			Leverage:   leverage.InexactFloat64(),
			EntryPrice: first.Entry.InexactFloat64(),
		}
	}

	trades := len(res.open) + closed
	strategy := types.Strategy{
		ID:               w.ID,
		Name:             w.DisplayName(),
		Address:          w.Address,
		Balance:          res.balance.InexactFloat64(),
		PnL:              pnl.InexactFloat64(),
		WinRate:          winRate.InexactFloat64(),
		Trades:           trades,
		OpenPositions:    len(res.open),
		LastTrade:        lastTrade,
		CurrentPosition:  current,
		BalancePnL:       res.balance.Sub(a.cfg.InitialFunding).InexactFloat64(),
		BalanceFallback:  !res.balanceOK,
		HistoryAvailable: res.historyOK,
	}
	return strategy, strategyTotals{winRate: winRate, trades: trades}
}

// applyTrends compares each rate with the previous observation of the same
// pair, stores the new observation, and returns the rates sorted by
// magnitude descending (lock held)
func (a *Aggregator) applyTrends(rates []resolver.RateRecord) []types.FundingRate {
	sorted := make([]resolver.RateRecord, len(rates))
	copy(sorted, rates)
	sort.SliceStable(sorted, func(i, j int) bool {
		mi, mj := sorted[i].Magnitude(), sorted[j].Magnitude()
		if !mi.Equal(mj) {
			return mi.GreaterThan(mj)
		}
		return sorted[i].Pair < sorted[j].Pair
	})

	out := make([]types.FundingRate, 0, len(sorted))
	for _, rr := range sorted {
		mag := rr.Magnitude()
		trend := types.TrendNeutral
		if prev, ok := a.prevRates[rr.Pair]; ok {
			diff := mag.Sub(prev).InexactFloat64()
			switch {
			case diff > trendEpsilon:
				trend = types.TrendUp
			case diff < -trendEpsilon:
				trend = types.TrendDown
			}
		}
		a.prevRates[rr.Pair] = mag
		out = append(out, rr.ToFundingRate(trend))
	}
	return out
}

// MergeTrades sorts trades newest first, makes ids unique, and keeps at most
// limit entries. Ties on timestamp are ordered by id.
func MergeTrades(trades []types.Trade, limit int) []types.Trade {
	merged := make([]types.Trade, len(trades))
	copy(merged, trades)

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}
		return merged[i].ID < merged[j].ID
	})

	// A slot index can be reused after a trade closes, so an open trade and a
	// closed one may share wallet, pair and index
	seen := make(map[string]bool, len(merged))
	for i := range merged {
		id := merged[i].ID
		if seen[id] {
			base := fmt.Sprintf("%s-%s-%d", id, merged[i].Status, merged[i].Timestamp.Unix())
			id = base
			for n := 2; seen[id]; n++ {
				id = fmt.Sprintf("%s-%d", base, n)
			}
			merged[i].ID = id
		}
		seen[id] = true
	}

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// BestOpportunities returns the pair where going long earns the most (most
// negative short rate) and the pair where going short earns the most (most
// negative long rate). Either is nil when no rate is negative.
func BestOpportunities(rates []types.FundingRate) (bestLong, bestShort *types.FundingOpportunity) {
	for _, r := range rates {
		if r.ShortRate < 0 && (bestLong == nil || r.ShortRate < bestLong.Rate) {
			bestLong = &types.FundingOpportunity{Pair: r.Pair, Rate: r.ShortRate}
		}
		if r.LongRate < 0 && (bestShort == nil || r.LongRate < bestShort.Rate) {
			bestShort = &types.FundingOpportunity{Pair: r.Pair, Rate: r.LongRate}
		}
	}
	return bestLong, bestShort
}
