package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"cngnlend/risk"
)

// CallBackend is the read-only subset of the Ethereum RPC the reader
// depends on.
type CallBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Reader issues view calls against the protocol contracts. Every call is
// pinned to the configured chain: the connected node's chain ID is checked
// at construction and again before each batch so calls are refused, never
// misrouted, when the endpoint changes underneath us.
type Reader struct {
	backend   CallBackend
	addresses Addresses
	chainID   *big.Int
}

// Dial connects to the RPC endpoint and verifies it serves the target
// chain.
func Dial(ctx context.Context, endpoint string, chainID uint64, addresses Addresses) (*Reader, *ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("rpc endpoint required")
	}
	client, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial %s: %v", ErrRemoteCallFailed, trimmed, err)
	}
	reader, err := NewReader(ctx, client, chainID, addresses)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return reader, client, nil
}

// NewReader wraps an existing backend after verifying its chain ID.
func NewReader(ctx context.Context, backend CallBackend, chainID uint64, addresses Addresses) (*Reader, error) {
	r := &Reader{backend: backend, addresses: addresses, chainID: new(big.Int).SetUint64(chainID)}
	if err := r.VerifyChain(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// VerifyChain re-checks the connected node against the target chain ID.
func (r *Reader) VerifyChain(ctx context.Context) error {
	remote, err := r.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: chain id: %v", ErrRemoteCallFailed, err)
	}
	if remote == nil || remote.Cmp(r.chainID) != 0 {
		return fmt.Errorf("%w: node reports chain %s, target %s", ErrWrongNetwork, remote, r.chainID)
	}
	return nil
}

// ChainID returns the pinned target chain identifier.
func (r *Reader) ChainID() *big.Int { return new(big.Int).Set(r.chainID) }

// Addresses returns the contract address set in use.
func (r *Reader) Addresses() Addresses { return r.addresses }

func (r *Reader) callUint(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", ErrRemoteCallFailed, method, err)
	}
	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRemoteCallFailed, method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrRemoteCallFailed, method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s: unexpected output arity %d", ErrRemoteCallFailed, method, len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected output type %T", ErrRemoteCallFailed, method, out[0])
	}
	return value, nil
}

// ProtocolParams reads the full parameter snapshot and validates its
// invariants before handing it back. A violated invariant is a
// configuration fault from the contract layer, not a recoverable state.
func (r *Reader) ProtocolParams(ctx context.Context) (risk.Params, error) {
	if err := r.VerifyChain(ctx); err != nil {
		return risk.Params{}, err
	}
	params := risk.Params{}
	reads := []struct {
		dst      **big.Int
		contract common.Address
		abi      abi.ABI
		method   string
	}{
		{&params.CollateralFactor, r.addresses.CollateralManager, collateralManagerABI, "getCollateralFactor"},
		{&params.LiquidationThreshold, r.addresses.CollateralManager, collateralManagerABI, "getLiquidationThreshold"},
		{&params.ReserveFactor, r.addresses.CollateralManager, collateralManagerABI, "getReserveFactor"},
		{&params.CloseFactor, r.addresses.CollateralManager, collateralManagerABI, "getCloseFactor"},
		{&params.LiquidationBonus, r.addresses.CollateralManager, collateralManagerABI, "getLiquidationBonus"},
		{&params.EthPrice, r.addresses.PriceOracle, priceOracleABI, "getEthPrice"},
		{&params.BorrowRate, r.addresses.LendingPool, lendingPoolABI, "borrowRate"},
		{&params.SupplyRate, r.addresses.LendingPool, lendingPoolABI, "supplyRate"},
		{&params.BaseRate, r.addresses.LendingPool, lendingPoolABI, "baseRate"},
		{&params.RateMultiplier, r.addresses.LendingPool, lendingPoolABI, "multiplier"},
		{&params.TotalSupply, r.addresses.LendingPool, lendingPoolABI, "totalSupply"},
		{&params.TotalBorrows, r.addresses.LendingPool, lendingPoolABI, "totalBorrows"},
		{&params.Utilization, r.addresses.LendingPool, lendingPoolABI, "utilization"},
		{&params.AvailableLiquidity, r.addresses.LendingPool, lendingPoolABI, "getCash"},
	}
	for _, read := range reads {
		value, err := r.callUint(ctx, read.contract, read.abi, read.method)
		if err != nil {
			return risk.Params{}, err
		}
		*read.dst = value
	}
	if err := params.Validate(); err != nil {
		return risk.Params{}, err
	}
	return params, nil
}

// UserPosition reads the raw per-account state backing a derived position.
func (r *Reader) UserPosition(ctx context.Context, account common.Address) (risk.RawPosition, error) {
	if err := r.VerifyChain(ctx); err != nil {
		return risk.RawPosition{}, err
	}
	raw := risk.RawPosition{}
	reads := []struct {
		dst      **big.Int
		contract common.Address
		abi      abi.ABI
		method   string
		args     []interface{}
	}{
		{&raw.CollateralETH, r.addresses.CollateralManager, collateralManagerABI, "getUserCollateral", []interface{}{account}},
		{&raw.CollateralValue, r.addresses.CollateralManager, collateralManagerABI, "getCollateralValue", []interface{}{account}},
		{&raw.MaxBorrow, r.addresses.CollateralManager, collateralManagerABI, "getMaxBorrow", []interface{}{account}},
		{&raw.DebtBalance, r.addresses.LendingPool, lendingPoolABI, "getBorrowBalance", []interface{}{account}},
		{&raw.HealthFactor, r.addresses.LendingPool, lendingPoolABI, "healthFactor", []interface{}{account}},
		{&raw.BorrowIndex, r.addresses.LendingPool, lendingPoolABI, "borrowIndex", nil},
		{&raw.UserBorrowIndex, r.addresses.LendingPool, lendingPoolABI, "borrowerIndex", []interface{}{account}},
	}
	for _, read := range reads {
		value, err := r.callUint(ctx, read.contract, read.abi, read.method, read.args...)
		if err != nil {
			return risk.RawPosition{}, err
		}
		*read.dst = value
	}
	return raw, nil
}

// TokenBalances reads the wallet-side balances and the lending pool
// allowance for the borrow asset.
func (r *Reader) TokenBalances(ctx context.Context, account common.Address) (risk.Balances, error) {
	if err := r.VerifyChain(ctx); err != nil {
		return risk.Balances{}, err
	}
	cngn, err := r.callUint(ctx, r.addresses.BorrowAsset, erc20ABI, "balanceOf", account)
	if err != nil {
		return risk.Balances{}, err
	}
	allowance, err := r.callUint(ctx, r.addresses.BorrowAsset, erc20ABI, "allowance", account, r.addresses.LendingPool)
	if err != nil {
		return risk.Balances{}, err
	}
	eth, err := r.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return risk.Balances{}, fmt.Errorf("%w: native balance: %v", ErrRemoteCallFailed, err)
	}
	return risk.Balances{ETH: eth, CNGN: cngn, CNGNAllowance: allowance}, nil
}

// HealthFactorAfterBorrow asks the pool contract for its own projection.
// The projector computes the same figure locally; this read exists so
// callers can cross-check against the authoritative integer math.
func (r *Reader) HealthFactorAfterBorrow(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	if err := r.VerifyChain(ctx); err != nil {
		return nil, err
	}
	return r.callUint(ctx, r.addresses.LendingPool, lendingPoolABI, "healthFactorAfterBorrow", account, amount)
}

// HealthFactorAfterWithdraw mirrors HealthFactorAfterBorrow for
// collateral withdrawals.
func (r *Reader) HealthFactorAfterWithdraw(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	if err := r.VerifyChain(ctx); err != nil {
		return nil, err
	}
	return r.callUint(ctx, r.addresses.LendingPool, lendingPoolABI, "healthFactorAfterWithdrawCollateral", account, amount)
}
