package adapter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// tradeComponents is the on-chain trade tuple shared by getTrades and getTradesHistory
const tradeComponents = `
  {"name":"trader","type":"address"},
  {"name":"pairIndex","type":"uint256"},
  {"name":"index","type":"uint256"},
  {"name":"initialPosToken","type":"uint256"},
  {"name":"positionSizeUsdc","type":"uint256"},
  {"name":"openPrice","type":"uint256"},
  {"name":"buy","type":"bool"},
  {"name":"leverage","type":"uint256"},
  {"name":"tp","type":"uint256"},
  {"name":"sl","type":"uint256"}`

const gTradeABIJSON = `[
  {"type":"function","name":"getTrades","stateMutability":"view",
   "inputs":[{"name":"trader","type":"address"}],
   "outputs":[{"name":"","type":"tuple[]","components":[` + tradeComponents + `]}]},
  {"type":"function","name":"getTradesHistory","stateMutability":"view",
   "inputs":[{"name":"trader","type":"address"},{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[` + tradeComponents + `,
     {"name":"closePrice","type":"uint256"},
     {"name":"closeTime","type":"uint256"},
     {"name":"pnl","type":"uint256"}]}]},
  {"type":"function","name":"pairName","stateMutability":"view",
   "inputs":[{"name":"","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"getPairBorrowingFeeParams","stateMutability":"view",
   "inputs":[{"name":"collateralIndex","type":"uint256"},{"name":"pairIndex","type":"uint256"}],
   "outputs":[
     {"name":"feePerSecond","type":"uint256"},
     {"name":"accFeeLong","type":"uint256"},
     {"name":"accFeeShort","type":"uint256"},
     {"name":"accLastUpdatedBlock","type":"uint256"}]}
]`

// Method names on the gTrade diamond and the ERC-20 token
const (
	MethodBalanceOf        = "balanceOf"
	MethodGetTrades        = "getTrades"
	MethodGetTradesHistory = "getTradesHistory"
	MethodPairName         = "pairName"
	MethodBorrowingParams  = "getPairBorrowingFeeParams"
)

var (
	// ERC20ABI is the token ABI fragment used for balance reads
	ERC20ABI = mustParseABI("erc20", erc20ABIJSON)
	// GTradeABI is the diamond ABI fragment used for trade and fee reads
	GTradeABI = mustParseABI("gtrade", gTradeABIJSON)
)

func mustParseABI(name, def string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid %s ABI: %v", name, err))
	}
	return &parsed
}

// RawOpenTrade mirrors the trade tuple returned by getTrades
type RawOpenTrade struct {
	Trader           common.Address
	PairIndex        *big.Int
	Index            *big.Int
	InitialPosToken  *big.Int
	PositionSizeUsdc *big.Int
	OpenPrice        *big.Int
	Buy              bool
	Leverage         *big.Int
	Tp               *big.Int
	Sl               *big.Int
}

// RawClosedTrade mirrors the trade tuple returned by getTradesHistory
type RawClosedTrade struct {
	Trader           common.Address
	PairIndex        *big.Int
	Index            *big.Int
	InitialPosToken  *big.Int
	PositionSizeUsdc *big.Int
	OpenPrice        *big.Int
	Buy              bool
	Leverage         *big.Int
	Tp               *big.Int
	Sl               *big.Int
	ClosePrice       *big.Int
	CloseTime        *big.Int
	Pnl              *big.Int
}

// RawBorrowingFeeParams mirrors the outputs of getPairBorrowingFeeParams
type RawBorrowingFeeParams struct {
	FeePerSecond        *big.Int
	AccFeeLong          *big.Int
	AccFeeShort         *big.Int
	AccLastUpdatedBlock *big.Int
}
