// Package resolver maps raw gTrade and ERC-20 reads into domain records.
//
// Resolvers never return errors. A failed chain read is logged and replaced
// by the documented fallback, and the ok flag tells the caller a fallback was
// used.
package resolver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gtrade-dashboard/internal/adapter"
	apperrors "github.com/gtrade-dashboard/internal/errors"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

const (
	usdcDecimals     = 6
	priceDecimals    = 10
	leverageDivisor  = 1000
	secondsPerYear   = 365 * 24 * 60 * 60
	defaultPageSize  = 20
	defaultFallback  = 37500
	borrowFeeDecimal = 10
)

// Config holds the fixed contract identities the resolvers read from
type Config struct {
	Token           common.Address
	TokenDecimals   int32
	Diamond         common.Address
	CollateralIndex uint64
	HistoryPageSize int
	FallbackBalance decimal.Decimal
	Pairs           []types.TrackedPair
}

// TradeRecord is a resolved trade with its exact amounts alongside the
// presentation record
type TradeRecord struct {
	Trade     types.Trade
	PairIndex uint64
	Size      decimal.Decimal
	PnL       decimal.Decimal
	Leverage  decimal.Decimal
	Entry     decimal.Decimal
}

// RateRecord is the annualized borrowing rate of one tracked pair
type RateRecord struct {
	Pair      string
	LongRate  decimal.Decimal
	ShortRate decimal.Decimal
}

// Resolvers implements the live data source over a ChainReader
type Resolvers struct {
	reader adapter.ChainReader
	cfg    Config
	pairs  *PairNames
	now    func() time.Time
	logger *logging.Logger
}

// New creates the resolver set
func New(reader adapter.ChainReader, cfg Config) (*Resolvers, error) {
	if reader == nil {
		return nil, fmt.Errorf("chain reader cannot be nil")
	}
	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = usdcDecimals
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = defaultPageSize
	}
	if cfg.FallbackBalance.IsZero() {
		cfg.FallbackBalance = decimal.NewFromInt(defaultFallback)
	}

	return &Resolvers{
		reader: reader,
		cfg:    cfg,
		pairs:  NewPairNames(reader, cfg.Diamond, cfg.Pairs),
		now:    time.Now,
		logger: logging.GetGlobalLogger().WithComponent("resolver"),
	}, nil
}

// Kind identifies the data source
func (r *Resolvers) Kind() types.SourceKind {
	return types.SourceLive
}

// FallbackBalance returns the balance substituted when a read fails
func (r *Resolvers) FallbackBalance() decimal.Decimal {
	return r.cfg.FallbackBalance
}

// PairNames returns the pair name resolver shared by the trade resolvers
func (r *Resolvers) PairNames() *PairNames {
	return r.pairs
}

// Balance returns the token balance of wallet, or the fallback balance
func (r *Resolvers) Balance(ctx context.Context, wallet types.StrategyWallet) (decimal.Decimal, bool) {
	raw, err := r.reader.TokenBalance(ctx, r.cfg.Token, common.HexToAddress(wallet.Address))
	if err != nil {
		r.logFailure(err, "balance", wallet, adapter.MethodBalanceOf)
		return r.cfg.FallbackBalance, false
	}
	return decimal.NewFromBigInt(raw, -r.cfg.TokenDecimals), true
}

// logFailure logs a fallback. Reverts and decode failures point at a
// contract or ABI mismatch and are logged as errors.
func (r *Resolvers) logFailure(err error, source string, wallet types.StrategyWallet, method string) {
	logger := r.logger.WithFields(map[string]interface{}{
		"source":   source,
		"strategy": wallet.ID,
		"wallet":   wallet.Address,
		"method":   method,
		"category": apperrors.CategoryOf(err),
	}).WithError(err)
	if apperrors.IsTransient(err) {
		logger.Warn("Chain read failed, using fallback")
		return
	}
	logger.Error("Chain read failed, using fallback")
}

// scaled converts a raw fixed-point integer to a decimal; nil reads as zero
func scaled(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

var (
	twoTo255 = new(big.Int).Lsh(big.NewInt(1), 255)
	twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// signed reinterprets a uint256 as a two's-complement int256
func signed(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.Cmp(twoTo255) >= 0 {
		return new(big.Int).Sub(v, twoTo256)
	}
	return v
}

func uint64Of(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func floatPtr(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}
