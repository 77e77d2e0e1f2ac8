package adapter

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gtrade-dashboard/internal/circuitbreaker"
	apperrors "github.com/gtrade-dashboard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDiamond = common.HexToAddress("0xd659a15812064C79E189fd950A189b15c75d3186")
	testToken   = common.HexToAddress("0x4cC7EbEeD5EA3adf3978F19833d2E1f3e8980cD6")
	testWallet  = common.HexToAddress("0xc9DB0FaddED889f7EADeBD56ddf6e0594058F076")
)

type revertErr struct{}

func (revertErr) Error() string          { return "execution reverted" }
func (revertErr) ErrorCode() int         { return 3 }
func (revertErr) ErrorData() interface{} { return "0x08c379a0" }

// fakeCaller answers calls by method selector
type fakeCaller struct {
	mu      sync.Mutex
	replies map[string]func(input []byte) ([]byte, error)
	calls   int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{replies: make(map[string]func([]byte) ([]byte, error))}
}

func (f *fakeCaller) on(contractABI *abi.ABI, method string, reply func(input []byte) ([]byte, error)) {
	f.replies[string(contractABI.Methods[method].ID)] = reply
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for selector, reply := range f.replies {
		if bytes.HasPrefix(msg.Data, []byte(selector)) {
			return reply(msg.Data)
		}
	}
	return nil, nil
}

func packOutputs(t *testing.T, contractABI *abi.ABI, method string, values ...interface{}) []byte {
	t.Helper()
	out, err := contractABI.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func newTestReader(t *testing.T, caller ContractCaller) *EthereumReader {
	t.Helper()
	provider, err := NewRPCProvider("test", "http://localhost:8545")
	require.NoError(t, err)
	reader, err := NewEthereumReader(&EthereumReaderConfig{
		Chain:          "test",
		Caller:         caller,
		Provider:       provider,
		RequestTimeout: time.Second,
	})
	require.NoError(t, err)
	return reader
}

func TestNewEthereumReader_HealthThresholds(t *testing.T) {
	provider, err := NewRPCProvider("test", "http://localhost:8545")
	require.NoError(t, err)
	_, err = NewEthereumReader(&EthereumReaderConfig{
		Chain:               "test",
		Caller:              newFakeCaller(),
		Provider:            provider,
		MaxConsecutiveFails: 2,
	})
	require.NoError(t, err)

	provider.RecordFailure(errors.New("timeout"))
	assert.True(t, provider.IsHealthy())
	provider.RecordFailure(errors.New("timeout"))
	assert.False(t, provider.IsHealthy())
}

func TestNewEthereumReader_RequiresCaller(t *testing.T) {
	_, err := NewEthereumReader(&EthereumReaderConfig{})
	assert.Error(t, err)
}

func TestTokenBalance(t *testing.T) {
	caller := newFakeCaller()
	caller.on(ERC20ABI, MethodBalanceOf, func(input []byte) ([]byte, error) {
		args, err := ERC20ABI.Methods[MethodBalanceOf].Inputs.Unpack(input[4:])
		if err != nil {
			return nil, err
		}
		if args[0].(common.Address) != testWallet {
			return packOutputs(t, ERC20ABI, MethodBalanceOf, big.NewInt(0)), nil
		}
		return packOutputs(t, ERC20ABI, MethodBalanceOf, big.NewInt(40_000_000_000)), nil
	})

	reader := newTestReader(t, caller)
	balance, err := reader.TokenBalance(context.Background(), testToken, testWallet)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(40_000_000_000), balance)

	health := reader.Health()
	assert.Equal(t, int64(1), health.SuccessfulReqs)
	assert.True(t, health.IsHealthy)
}

func TestCallView_OpenTrades(t *testing.T) {
	trades := []RawOpenTrade{{
		Trader:           testWallet,
		PairIndex:        big.NewInt(1),
		Index:            big.NewInt(7),
		InitialPosToken:  big.NewInt(1_000_000_000),
		PositionSizeUsdc: big.NewInt(2_500_000_000),
		OpenPrice:        big.NewInt(31_000_000_000_000),
		Buy:              true,
		Leverage:         big.NewInt(5000),
		Tp:               big.NewInt(0),
		Sl:               big.NewInt(0),
	}}
	caller := newFakeCaller()
	caller.on(GTradeABI, MethodGetTrades, func([]byte) ([]byte, error) {
		return packOutputs(t, GTradeABI, MethodGetTrades, trades), nil
	})

	reader := newTestReader(t, caller)
	var got []RawOpenTrade
	err := reader.CallView(context.Background(), ViewCall{
		Contract: testDiamond,
		ABI:      GTradeABI,
		Method:   MethodGetTrades,
		Args:     []interface{}{testWallet},
	}, &got)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testWallet, got[0].Trader)
	assert.Equal(t, int64(7), got[0].Index.Int64())
	assert.True(t, got[0].Buy)
	assert.Equal(t, int64(5000), got[0].Leverage.Int64())
}

func TestCallView_BorrowingParams(t *testing.T) {
	caller := newFakeCaller()
	caller.on(GTradeABI, MethodBorrowingParams, func([]byte) ([]byte, error) {
		return packOutputs(t, GTradeABI, MethodBorrowingParams,
			big.NewInt(317), big.NewInt(1), big.NewInt(2), big.NewInt(3)), nil
	})

	reader := newTestReader(t, caller)
	var got RawBorrowingFeeParams
	err := reader.CallView(context.Background(), ViewCall{
		Contract: testDiamond,
		ABI:      GTradeABI,
		Method:   MethodBorrowingParams,
		Args:     []interface{}{big.NewInt(1), big.NewInt(0)},
	}, &got)
	require.NoError(t, err)
	assert.Equal(t, int64(317), got.FeePerSecond.Int64())
	assert.Equal(t, int64(3), got.AccLastUpdatedBlock.Int64())
}

func TestCallView_ErrorCategories(t *testing.T) {
	tests := []struct {
		name     string
		reply    func([]byte) ([]byte, error)
		category apperrors.ErrorCategory
		failure  bool
	}{
		{
			name:     "transport error",
			reply:    func([]byte) ([]byte, error) { return nil, errors.New("dial tcp: connection refused") },
			category: apperrors.CategoryTransport,
			failure:  true,
		},
		{
			name:     "revert",
			reply:    func([]byte) ([]byte, error) { return nil, revertErr{} },
			category: apperrors.CategoryCallReverted,
		},
		{
			name:     "empty return data",
			reply:    func([]byte) ([]byte, error) { return nil, nil },
			category: apperrors.CategoryDecode,
		},
		{
			name:     "garbage return data",
			reply:    func([]byte) ([]byte, error) { return []byte{0x01, 0x02}, nil },
			category: apperrors.CategoryDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller()
			caller.on(GTradeABI, MethodPairName, tt.reply)
			reader := newTestReader(t, caller)

			var name string
			err := reader.CallView(context.Background(), ViewCall{
				Contract: testDiamond,
				ABI:      GTradeABI,
				Method:   MethodPairName,
				Args:     []interface{}{big.NewInt(3)},
			}, &name)
			require.Error(t, err)
			assert.Equal(t, tt.category, apperrors.CategoryOf(err))

			health := reader.Health()
			if tt.failure {
				assert.Equal(t, int64(1), health.FailedReqs)
			} else {
				assert.Equal(t, int64(0), health.FailedReqs)
			}
		})
	}
}

func TestCallView_RequestTimeout(t *testing.T) {
	caller := &blockingCaller{}
	reader, err := NewEthereumReader(&EthereumReaderConfig{
		Caller:         caller,
		RequestTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	var name string
	err = reader.CallView(context.Background(), ViewCall{
		Contract: testDiamond,
		ABI:      GTradeABI,
		Method:   MethodPairName,
		Args:     []interface{}{big.NewInt(3)},
	}, &name)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryTransport))
}

type blockingCaller struct{}

func (blockingCaller) CallContract(ctx context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCallView_BreakerOpensOnTransportFailures(t *testing.T) {
	caller := newFakeCaller()
	caller.on(GTradeABI, MethodPairName, func([]byte) ([]byte, error) {
		return nil, errors.New("503 Service Unavailable")
	})

	breakerCfg := circuitbreaker.DefaultConfig("test")
	breakerCfg.ConsecutiveFailures = 2
	breakerCfg.OpenTimeout = time.Hour
	breakerCfg.IsFailure = IsEndpointFailure

	reader, err := NewEthereumReader(&EthereumReaderConfig{
		Caller:  caller,
		Breaker: circuitbreaker.NewCircuitBreaker(breakerCfg),
	})
	require.NoError(t, err)

	call := ViewCall{Contract: testDiamond, ABI: GTradeABI, Method: MethodPairName, Args: []interface{}{big.NewInt(3)}}
	var name string
	for i := 0; i < 3; i++ {
		err = reader.CallView(context.Background(), call, &name)
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryTransport))
	}

	assert.Equal(t, 2, caller.calls)
	assert.Equal(t, circuitbreaker.StateOpen, reader.BreakerStats().State)
}

func TestCallView_RevertsDoNotOpenBreaker(t *testing.T) {
	caller := newFakeCaller()
	caller.on(GTradeABI, MethodPairName, func([]byte) ([]byte, error) { return nil, revertErr{} })

	breakerCfg := circuitbreaker.DefaultConfig("test")
	breakerCfg.ConsecutiveFailures = 2
	breakerCfg.IsFailure = IsEndpointFailure

	reader, err := NewEthereumReader(&EthereumReaderConfig{
		Caller:  caller,
		Breaker: circuitbreaker.NewCircuitBreaker(breakerCfg),
	})
	require.NoError(t, err)

	call := ViewCall{Contract: testDiamond, ABI: GTradeABI, Method: MethodPairName, Args: []interface{}{big.NewInt(3)}}
	var name string
	for i := 0; i < 5; i++ {
		_ = reader.CallView(context.Background(), call, &name)
	}
	assert.Equal(t, 5, caller.calls)
	assert.Equal(t, circuitbreaker.StateClosed, reader.BreakerStats().State)
}

func TestRPCProvider_Health(t *testing.T) {
	_, err := NewRPCProvider("test", "")
	assert.Error(t, err)

	p, err := NewRPCProvider("test", "http://rpc")
	require.NoError(t, err)
	p.SetHealthThresholds(3, 0.5)

	p.RecordSuccess(10 * time.Millisecond)
	p.RecordSuccess(30 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, p.GetHealth().AverageLatency)

	for i := 0; i < 3; i++ {
		p.RecordFailure(errors.New("timeout"))
	}
	health := p.GetHealth()
	assert.False(t, health.IsHealthy)
	assert.Equal(t, "timeout", health.LastError)
	assert.InDelta(t, 0.4, health.SuccessRate, 1e-9)

	p.RecordSuccess(time.Millisecond)
	assert.True(t, p.IsHealthy())
}
