// Package adapter reads view functions from EVM contracts over JSON-RPC.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gtrade-dashboard/internal/circuitbreaker"
	apperrors "github.com/gtrade-dashboard/internal/errors"
	"github.com/gtrade-dashboard/internal/logging"
	"golang.org/x/time/rate"
)

// ContractCaller executes a read-only call against the latest block.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ViewCall describes one read-only contract function invocation
type ViewCall struct {
	Contract common.Address
	ABI      *abi.ABI
	Method   string
	Args     []interface{}
}

// ChainReader is the narrow read interface the resolvers depend on.
// Every error it returns is an *errors.CategorizedError in the
// transport_failure, call_reverted or decode_failure category.
type ChainReader interface {
	// CallView executes call and decodes its outputs into out, a pointer
	CallView(ctx context.Context, call ViewCall, out interface{}) error

	// TokenBalance returns the raw ERC-20 balance of holder
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// EthereumReaderConfig holds configuration for creating an EthereumReader
type EthereumReaderConfig struct {
	// Chain names the network in logs and health output
	Chain string

	// Caller performs the eth_call. Required.
	Caller ContractCaller

	// Provider tracks endpoint health. Optional.
	Provider *RPCProvider

	// MaxConsecutiveFails and MinSuccessRate set the provider's health
	// thresholds. Zero keeps the provider defaults.
	MaxConsecutiveFails int
	MinSuccessRate      float64

	// Breaker fails calls fast while the endpoint is down. Optional.
	Breaker *circuitbreaker.CircuitBreaker

	// RequestTimeout bounds each call. Zero means 10s.
	RequestTimeout time.Duration

	// CallsPerSecond paces outgoing calls. Zero disables pacing.
	CallsPerSecond float64
	CallBurst      int
}

// EthereumReader implements ChainReader for EVM chains
type EthereumReader struct {
	chain    string
	caller   ContractCaller
	provider *RPCProvider
	breaker  *circuitbreaker.CircuitBreaker
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *logging.Logger
}

// NewEthereumReader creates a reader over an existing caller
func NewEthereumReader(cfg *EthereumReaderConfig) (*EthereumReader, error) {
	if cfg == nil || cfg.Caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.CallsPerSecond > 0 {
		burst := cfg.CallBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), burst)
	}

	if cfg.Provider != nil {
		cfg.Provider.SetHealthThresholds(cfg.MaxConsecutiveFails, cfg.MinSuccessRate)
	}

	return &EthereumReader{
		chain:    cfg.Chain,
		caller:   cfg.Caller,
		provider: cfg.Provider,
		breaker:  cfg.Breaker,
		limiter:  limiter,
		timeout:  timeout,
		logger:   logging.GetGlobalLogger().WithComponent("chain_reader").WithField("chain", cfg.Chain),
	}, nil
}

// DialEthereumReader connects to rpcURL and returns a reader with its own
// health tracking and circuit breaker. The returned client must be closed by
// the caller.
func DialEthereumReader(ctx context.Context, cfg EthereumReaderConfig, rpcURL string) (*EthereumReader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, apperrors.NewTransportError("dial", err)
	}

	provider, err := NewRPCProvider(cfg.Chain, rpcURL)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	breakerCfg := circuitbreaker.DefaultConfig(cfg.Chain + "-rpc")
	breakerCfg.IsFailure = IsEndpointFailure

	cfg.Caller = client
	cfg.Provider = provider
	cfg.Breaker = circuitbreaker.NewCircuitBreaker(breakerCfg)

	reader, err := NewEthereumReader(&cfg)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return reader, client, nil
}

// IsEndpointFailure reports whether a raw call error means the endpoint
// itself failed, as opposed to the contract reverting.
func IsEndpointFailure(err error) bool {
	return apperrors.Classify("", "", err).Category == apperrors.CategoryTransport
}

// CallView executes a view function and decodes its outputs into out
func (r *EthereumReader) CallView(ctx context.Context, call ViewCall, out interface{}) error {
	if call.ABI == nil {
		return apperrors.NewDecodeError(call.Method, errors.New("no ABI for call"))
	}

	input, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return apperrors.NewDecodeError(call.Method, err)
	}

	output, err := r.call(ctx, call.Contract, call.Method, input)
	if err != nil {
		return err
	}

	if len(output) == 0 {
		// A call to an address without code returns no data
		return apperrors.NewDecodeError(call.Method, errors.New("empty return data"))
	}

	if err := call.ABI.UnpackIntoInterface(out, call.Method, output); err != nil {
		return apperrors.NewDecodeError(call.Method, err)
	}
	return nil
}

// TokenBalance returns the raw ERC-20 balance of holder
func (r *EthereumReader) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	var balance *big.Int
	err := r.CallView(ctx, ViewCall{
		Contract: token,
		ABI:      ERC20ABI,
		Method:   MethodBalanceOf,
		Args:     []interface{}{holder},
	}, &balance)
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// Health returns the endpoint health, or nil when not tracked
func (r *EthereumReader) Health() *ProviderHealth {
	if r.provider == nil {
		return nil
	}
	return r.provider.GetHealth()
}

// BreakerStats returns the circuit breaker statistics, or nil when not configured
func (r *EthereumReader) BreakerStats() *circuitbreaker.Stats {
	if r.breaker == nil {
		return nil
	}
	return r.breaker.GetStats()
}

// call performs one paced, bounded eth_call and classifies its error
func (r *EthereumReader) call(ctx context.Context, contract common.Address, method string, input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewTransportError(method, err)
		}
	}

	var output []byte
	exec := func(ctx context.Context) error {
		start := time.Now()
		out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
		r.record(err, time.Since(start))
		output = out
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(ctx, exec)
	} else {
		err = exec(ctx)
	}

	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, apperrors.NewTransportError(method, err)
		}
		catErr := apperrors.Classify(contract.Hex(), method, err)
		r.logger.WithFields(map[string]interface{}{
			"contract": contract.Hex(),
			"method":   method,
			"category": catErr.Category,
		}).WithError(err).Debug("Contract call failed")
		return nil, catErr
	}
	return output, nil
}

func (r *EthereumReader) record(err error, elapsed time.Duration) {
	if r.provider == nil {
		return
	}
	if err != nil && IsEndpointFailure(err) {
		r.provider.RecordFailure(err)
		return
	}
	r.provider.RecordSuccess(elapsed)
}
