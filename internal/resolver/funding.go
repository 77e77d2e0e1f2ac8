package resolver

import (
	"context"
	"math/big"

	"github.com/gtrade-dashboard/internal/adapter"
	apperrors "github.com/gtrade-dashboard/internal/errors"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var aprFactor = decimal.NewFromInt(secondsPerYear * 100)

// FundingRates reads the borrowing fee parameters of every tracked pair.
// Pairs whose read fails are dropped from the result and returned in failed.
// Rates come back in tracked-pair order.
func (r *Resolvers) FundingRates(ctx context.Context) (rates []RateRecord, failed []string) {
	results := make([]*RateRecord, len(r.cfg.Pairs))
	collateral := new(big.Int).SetUint64(r.cfg.CollateralIndex)

	var g errgroup.Group
	for i, pair := range r.cfg.Pairs {
		g.Go(func() error {
			var params adapter.RawBorrowingFeeParams
			err := r.reader.CallView(ctx, adapter.ViewCall{
				Contract: r.cfg.Diamond,
				ABI:      adapter.GTradeABI,
				Method:   adapter.MethodBorrowingParams,
				Args:     []interface{}{collateral, new(big.Int).SetUint64(pair.Index)},
			}, &params)
			if err != nil {
				r.logger.WithFields(map[string]interface{}{
					"source":    "funding_rate",
					"pair":      pair.Name,
					"pairIndex": pair.Index,
					"category":  apperrors.CategoryOf(err),
				}).WithError(err).Warn("Chain read failed, dropping pair")
				return nil
			}

			apr := AnnualizedRate(params.FeePerSecond)
			results[i] = &RateRecord{Pair: pair.Name, LongRate: apr, ShortRate: apr}
			return nil
		})
	}
	_ = g.Wait()

	rates = make([]RateRecord, 0, len(results))
	for i, rec := range results {
		if rec == nil {
			failed = append(failed, r.cfg.Pairs[i].Name)
			continue
		}
		rates = append(rates, *rec)
	}
	return rates, failed
}

// AnnualizedRate converts a per-second borrowing fee with 10 decimals into an
// annual percentage
func AnnualizedRate(feePerSecond *big.Int) decimal.Decimal {
	return scaled(feePerSecond, borrowFeeDecimal).Mul(aprFactor)
}

// ToFundingRate converts a rate record to its presentation form with the given trend
func (rr RateRecord) ToFundingRate(trend types.Trend) types.FundingRate {
	return types.FundingRate{
		Pair:      rr.Pair,
		LongRate:  rr.LongRate.InexactFloat64(),
		ShortRate: rr.ShortRate.InexactFloat64(),
		Trend:     trend,
	}
}

// Magnitude returns the larger absolute value of the long and short rates
func (rr RateRecord) Magnitude() decimal.Decimal {
	return decimal.Max(rr.LongRate.Abs(), rr.ShortRate.Abs())
}
