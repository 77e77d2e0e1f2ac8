// Package types provides the domain model shared by the dashboard's resolvers,
// aggregator, refresh controller and API.
package types

import (
	"fmt"
	"time"
)

// Direction represents the side of a position
type Direction string

const (
	// DirectionLong represents a long position
	DirectionLong Direction = "long"
	// DirectionShort represents a short position
	DirectionShort Direction = "short"
)

// DirectionFromBuy maps the on-chain buy flag to a Direction
func DirectionFromBuy(buy bool) Direction {
	if buy {
		return DirectionLong
	}
	return DirectionShort
}

// TradeStatus represents whether a trade is still live on-chain
type TradeStatus string

const (
	// TradeOpen represents a trade that is currently open
	TradeOpen TradeStatus = "open"
	// TradeClosed represents a settled trade with realized PnL
	TradeClosed TradeStatus = "closed"
)

// Trend represents the direction of a funding rate relative to its previous observation
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// SourceKind identifies which data source produced a snapshot
type SourceKind string

const (
	// SourceLive reads everything from the chain
	SourceLive SourceKind = "live"
	// SourceMock produces deterministic synthetic data
	SourceMock SourceKind = "mock"
)

// ActiveNow is the lastTrade marker used when a wallet has open positions but no closed history
const ActiveNow = "Active now"

// StrategyIDs is the closed set of strategy ids; each has a PnL history column
var StrategyIDs = []string{"A", "B", "C", "D"}

// IsStrategyID reports whether id belongs to StrategyIDs
func IsStrategyID(id string) bool {
	for _, known := range StrategyIDs {
		if id == known {
			return true
		}
	}
	return false
}

// StrategyWallet is the fixed identity of one strategy wallet
type StrategyWallet struct {
	ID           string `json:"id" toml:"id"`
	StrategyType string `json:"strategyType" toml:"type"`
	Address      string `json:"address" toml:"address"`
}

// DisplayName returns the human readable strategy name, e.g. "Strategy A - Mean Reversion"
func (w StrategyWallet) DisplayName() string {
	kind := w.StrategyType
	if kind == "" {
		kind = "Trading"
	}
	return fmt.Sprintf("Strategy %s - %s", w.ID, kind)
}

// TrackedPair is a trading pair whose funding rate is monitored
type TrackedPair struct {
	Name  string `json:"name" toml:"name"`
	Index uint64 `json:"index" toml:"index"`
}

// CurrentPosition summarizes the first open position of a strategy
type CurrentPosition struct {
	Pair       string    `json:"pair"`
	Direction  Direction `json:"direction"`
	Size       float64   `json:"size"`
	Leverage   float64   `json:"leverage"`
	EntryPrice float64   `json:"entryPrice"`
}

// Strategy is the derived performance record of one wallet
type Strategy struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Address         string           `json:"address"`
	Balance         float64          `json:"balance"`
	PnL             float64          `json:"pnl"`
	WinRate         float64          `json:"winRate"`
	Trades          int              `json:"trades"`
	OpenPositions   int              `json:"openPositions"`
	LastTrade       *string          `json:"lastTrade"`
	CurrentPosition *CurrentPosition `json:"currentPosition"`

	// BalancePnL is balance minus the initial funding amount. It diverges
	// from PnL when the wallet saw deposits or withdrawals outside trading.
	BalancePnL       float64 `json:"balancePnl"`
	BalanceFallback  bool    `json:"balanceFallback"`
	HistoryAvailable bool    `json:"historyAvailable"`
}

// Trade is a single open or closed position record
type Trade struct {
	ID         string      `json:"id"`
	Strategy   string      `json:"strategy"`
	Pair       string      `json:"pair"`
	Type       Direction   `json:"type"`
	Size       float64     `json:"size"`
	PnL        float64     `json:"pnl"`
	Timestamp  time.Time   `json:"timestamp"`
	Status     TradeStatus `json:"status"`
	EntryPrice *float64    `json:"entryPrice,omitempty"`
	ExitPrice  *float64    `json:"exitPrice,omitempty"`
	Leverage   *float64    `json:"leverage,omitempty"`
}

// TradeID builds the synthetic trade id, stable across refreshes for the same on-chain slot
func TradeID(wallet string, pairIndex, index uint64) string {
	return fmt.Sprintf("%s-%d-%d", wallet, pairIndex, index)
}

// PnLDataPoint is one calendar day of cumulative PnL per strategy
type PnLDataPoint struct {
	Timestamp string  `json:"timestamp"`
	StrategyA float64 `json:"strategyA"`
	StrategyB float64 `json:"strategyB"`
	StrategyC float64 `json:"strategyC"`
	StrategyD float64 `json:"strategyD"`
	Total     float64 `json:"total"`
}

// FundingRate is the annualized borrowing cost of one pair
type FundingRate struct {
	Pair      string  `json:"pair"`
	LongRate  float64 `json:"longRate"`
	ShortRate float64 `json:"shortRate"`
	Trend     Trend   `json:"trend"`
}

// Magnitude returns the larger absolute value of the long and short rates
func (f FundingRate) Magnitude() float64 {
	l, s := f.LongRate, f.ShortRate
	if l < 0 {
		l = -l
	}
	if s < 0 {
		s = -s
	}
	if l > s {
		return l
	}
	return s
}

// FundingOpportunity is a pair where holding one side earns the funding rate
type FundingOpportunity struct {
	Pair string  `json:"pair"`
	Rate float64 `json:"rate"`
}

// Degradation records a resolver that fell back during a refresh
type Degradation struct {
	Source string `json:"source"`
	Wallet string `json:"wallet,omitempty"`
	Pair   string `json:"pair,omitempty"`
}

// Snapshot is the complete, internally consistent output of one refresh cycle.
// It is never mutated after construction.
type Snapshot struct {
	Strategies   []Strategy     `json:"strategies"`
	Trades       []Trade        `json:"trades"`
	PnLHistory   []PnLDataPoint `json:"pnlHistory"`
	FundingRates []FundingRate  `json:"fundingRates"`
	TotalBalance float64        `json:"totalBalance"`
	TotalPnL     float64        `json:"totalPnL"`
	WinRate      float64        `json:"winRate"`
	Loading      bool           `json:"loading"`

	GeneratedAt time.Time           `json:"generatedAt"`
	Source      SourceKind          `json:"source"`
	Stale       bool                `json:"stale"`
	Degraded    []Degradation       `json:"degraded"`
	BestLong    *FundingOpportunity `json:"bestLong"`
	BestShort   *FundingOpportunity `json:"bestShort"`
}

// EmptySnapshot returns the snapshot served before the first refresh completes
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Strategies:   []Strategy{},
		Trades:       []Trade{},
		PnLHistory:   []PnLDataPoint{},
		FundingRates: []FundingRate{},
		Degraded:     []Degradation{},
		Loading:      true,
	}
}

// WithLoading returns a shallow copy of the snapshot with the loading flag set.
// Slices are shared, which is safe because snapshots are immutable.
func (s *Snapshot) WithLoading(loading bool) *Snapshot {
	cp := *s
	cp.Loading = loading
	return &cp
}

// StrategyByID returns the strategy with the given id
func (s *Snapshot) StrategyByID(id string) (*Strategy, bool) {
	for i := range s.Strategies {
		if s.Strategies[i].ID == id {
			return &s.Strategies[i], true
		}
	}
	return nil, false
}

// ServiceError represents an error payload returned by the API
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}
