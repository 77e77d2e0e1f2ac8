package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyWallet_DisplayName(t *testing.T) {
	t.Run("uses strategy type", func(t *testing.T) {
		w := StrategyWallet{ID: "B", StrategyType: "Funding Arb"}
		assert.Equal(t, "Strategy B - Funding Arb", w.DisplayName())
	})

	t.Run("defaults to Trading", func(t *testing.T) {
		w := StrategyWallet{ID: "D"}
		assert.Equal(t, "Strategy D - Trading", w.DisplayName())
	})
}

func TestIsStrategyID(t *testing.T) {
	for _, id := range []string{"A", "B", "C", "D"} {
		assert.True(t, IsStrategyID(id), id)
	}
	for _, id := range []string{"", "E", "a", "W1"} {
		assert.False(t, IsStrategyID(id), id)
	}
}

func TestTradeID(t *testing.T) {
	assert.Equal(t, "0xabc-32-7", TradeID("0xabc", 32, 7))
}

func TestDirectionFromBuy(t *testing.T) {
	assert.Equal(t, DirectionLong, DirectionFromBuy(true))
	assert.Equal(t, DirectionShort, DirectionFromBuy(false))
}

func TestSnapshot_JSONContract(t *testing.T) {
	snap := EmptySnapshot()
	snap.GeneratedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, key := range []string{"strategies", "trades", "pnlHistory", "fundingRates", "totalBalance", "totalPnL", "winRate", "loading"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, true, fields["loading"])
	assert.Equal(t, []interface{}{}, fields["strategies"])
}

func TestStrategy_NullableFields(t *testing.T) {
	data, err := json.Marshal(Strategy{ID: "A"})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Contains(t, fields, "lastTrade")
	assert.Nil(t, fields["lastTrade"])
	assert.Contains(t, fields, "currentPosition")
	assert.Nil(t, fields["currentPosition"])
}

func TestSnapshot_WithLoading(t *testing.T) {
	snap := &Snapshot{Strategies: []Strategy{{ID: "A"}}}

	loading := snap.WithLoading(true)

	assert.True(t, loading.Loading)
	assert.False(t, snap.Loading, "original must not change")
	assert.Equal(t, snap.Strategies, loading.Strategies)
}

func TestSnapshot_StrategyByID(t *testing.T) {
	snap := &Snapshot{Strategies: []Strategy{{ID: "A"}, {ID: "C", Balance: 12}}}

	s, ok := snap.StrategyByID("C")
	require.True(t, ok)
	assert.Equal(t, 12.0, s.Balance)

	_, ok = snap.StrategyByID("Z")
	assert.False(t, ok)
}
