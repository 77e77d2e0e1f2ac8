package resolver

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gtrade-dashboard/internal/adapter"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

// OpenPositions returns the open trades of wallet, or an empty list
func (r *Resolvers) OpenPositions(ctx context.Context, wallet types.StrategyWallet) ([]TradeRecord, bool) {
	var raw []adapter.RawOpenTrade
	err := r.reader.CallView(ctx, adapter.ViewCall{
		Contract: r.cfg.Diamond,
		ABI:      adapter.GTradeABI,
		Method:   adapter.MethodGetTrades,
		Args:     []interface{}{common.HexToAddress(wallet.Address)},
	}, &raw)
	if err != nil {
		r.logFailure(err, "open_positions", wallet, adapter.MethodGetTrades)
		return []TradeRecord{}, false
	}

	// The trade struct carries no open time; open trades are stamped with the read time
	now := r.now().UTC()
	records := make([]TradeRecord, 0, len(raw))
	for _, t := range raw {
		pairIndex := uint64Of(t.PairIndex)
		size := scaled(t.PositionSizeUsdc, usdcDecimals)
		entry := scaled(t.OpenPrice, priceDecimals)
		leverage := leverageOf(t.Leverage)

		trade := types.Trade{
			ID:         types.TradeID(wallet.Address, pairIndex, uint64Of(t.Index)),
			Strategy:   wallet.ID,
			Pair:       r.pairs.Resolve(ctx, pairIndex),
			Type:       types.DirectionFromBuy(t.Buy),
			Size:       size.InexactFloat64(),
			Timestamp:  now,
			Status:     types.TradeOpen,
			EntryPrice: floatPtr(entry),
		}
		if leverage.IsPositive() {
			trade.Leverage = floatPtr(leverage)
		}

		records = append(records, TradeRecord{
			Trade:     trade,
			PairIndex: pairIndex,
			Size:      size,
			PnL:       decimal.Zero,
			Leverage:  leverage,
			Entry:     entry,
		})
	}
	return records, true
}

// TradeHistory returns the most recent closed trades of wallet, newest first,
// or an empty list
func (r *Resolvers) TradeHistory(ctx context.Context, wallet types.StrategyWallet) ([]TradeRecord, bool) {
	var raw []adapter.RawClosedTrade
	err := r.reader.CallView(ctx, adapter.ViewCall{
		Contract: r.cfg.Diamond,
		ABI:      adapter.GTradeABI,
		Method:   adapter.MethodGetTradesHistory,
		Args: []interface{}{
			common.HexToAddress(wallet.Address),
			big.NewInt(0),
			big.NewInt(int64(r.cfg.HistoryPageSize)),
		},
	}, &raw)
	if err != nil {
		r.logFailure(err, "trade_history", wallet, adapter.MethodGetTradesHistory)
		return []TradeRecord{}, false
	}

	records := make([]TradeRecord, 0, len(raw))
	for _, t := range raw {
		pairIndex := uint64Of(t.PairIndex)
		size := scaled(t.PositionSizeUsdc, usdcDecimals)
		entry := scaled(t.OpenPrice, priceDecimals)
		leverage := leverageOf(t.Leverage)
		pnl := decimal.NewFromBigInt(signed(t.Pnl), -usdcDecimals)

		trade := types.Trade{
			ID:         types.TradeID(wallet.Address, pairIndex, uint64Of(t.Index)),
			Strategy:   wallet.ID,
			Pair:       r.pairs.Resolve(ctx, pairIndex),
			Type:       types.DirectionFromBuy(t.Buy),
			Size:       size.InexactFloat64(),
			PnL:        pnl.InexactFloat64(),
			Timestamp:  time.Unix(int64(uint64Of(t.CloseTime)), 0).UTC(),
			Status:     types.TradeClosed,
			EntryPrice: floatPtr(entry),
			ExitPrice:  floatPtr(scaled(t.ClosePrice, priceDecimals)),
		}
		if leverage.IsPositive() {
			trade.Leverage = floatPtr(leverage)
		}

		records = append(records, TradeRecord{
			Trade:     trade,
			PairIndex: pairIndex,
			Size:      size,
			PnL:       pnl,
			Leverage:  leverage,
			Entry:     entry,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Trade.Timestamp.After(records[j].Trade.Timestamp)
	})
	return records, true
}

func leverageOf(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0).Div(decimal.NewFromInt(leverageDivisor))
}
