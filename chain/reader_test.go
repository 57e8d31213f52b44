package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cngnlend/risk"
	"cngnlend/wad"
)

const testChain = uint64(202601)

func testAddresses() Addresses {
	return Addresses{
		LendingPool:       common.HexToAddress("0x1000000000000000000000000000000000000001"),
		CollateralManager: common.HexToAddress("0x1000000000000000000000000000000000000002"),
		PriceOracle:       common.HexToAddress("0x1000000000000000000000000000000000000003"),
		BorrowAsset:       common.HexToAddress("0x1000000000000000000000000000000000000004"),
	}
}

func wadInt(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), wad.Scale)
}

func wadFrac(numerator, denominator int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(numerator), wad.Scale)
	return v.Quo(v, big.NewInt(denominator))
}

// scriptedBackend answers view calls by method selector with pre-seeded
// uint256 values.
type scriptedBackend struct {
	chainID *big.Int
	values  map[string]*big.Int
	balance *big.Int
	callErr error
}

func (b *scriptedBackend) ChainID(context.Context) (*big.Int, error) {
	return b.chainID, nil
}

func (b *scriptedBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return b.balance, nil
}

func (b *scriptedBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.callErr != nil {
		return nil, b.callErr
	}
	if len(call.Data) < 4 {
		return nil, errors.New("missing selector")
	}
	for _, parsed := range []abi.ABI{lendingPoolABI, collateralManagerABI, priceOracleABI, erc20ABI} {
		method, err := parsed.MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		value, ok := b.values[method.Name]
		if !ok {
			return nil, errors.New("no scripted value for " + method.Name)
		}
		return common.LeftPadBytes(value.Bytes(), 32), nil
	}
	return nil, errors.New("unknown selector")
}

func protocolBackend() *scriptedBackend {
	return &scriptedBackend{
		chainID: new(big.Int).SetUint64(testChain),
		balance: wadInt(5),
		values: map[string]*big.Int{
			"getCollateralFactor":     wadFrac(80, 100),
			"getLiquidationThreshold": wadFrac(85, 100),
			"getReserveFactor":        wadFrac(10, 100),
			"getCloseFactor":          wadFrac(60, 100),
			"getLiquidationBonus":     wadFrac(105, 100),
			"getEthPrice":             wadInt(2000),
			"borrowRate":              big.NewInt(1_000_000_000),
			"supplyRate":              big.NewInt(500_000_000),
			"baseRate":                wadFrac(2, 100),
			"multiplier":              wadFrac(18, 100),
			"totalSupply":             wadInt(1_000_000),
			"totalBorrows":            wadInt(400_000),
			"utilization":             wadFrac(40, 100),
			"getCash":                 wadInt(600_000),
			"getUserCollateral":       wadInt(1),
			"getCollateralValue":      wadInt(2000),
			"getMaxBorrow":            wadInt(1600),
			"getBorrowBalance":        wadInt(500),
			"healthFactor":            wadFrac(34, 10),
			"borrowIndex":             wad.Scale,
			"borrowerIndex":           wad.Scale,
			"balanceOf":               wadInt(750),
			"allowance":               wadInt(100),
		},
	}
}

func TestNewReaderRefusesWrongChain(t *testing.T) {
	backend := protocolBackend()
	backend.chainID = big.NewInt(1)
	_, err := NewReader(context.Background(), backend, testChain, testAddresses())
	require.ErrorIs(t, err, ErrWrongNetwork)
}

func TestProtocolParamsReadsAndValidates(t *testing.T) {
	backend := protocolBackend()
	reader, err := NewReader(context.Background(), backend, testChain, testAddresses())
	require.NoError(t, err)

	params, err := reader.ProtocolParams(context.Background())
	require.NoError(t, err)
	require.Equal(t, wadFrac(80, 100), params.CollateralFactor)
	require.Equal(t, wadFrac(85, 100), params.LiquidationThreshold)
	require.Equal(t, wadInt(2000), params.EthPrice)
	require.Equal(t, wadInt(600_000), params.AvailableLiquidity)
	require.Equal(t, wadFrac(2, 100), params.BaseRate)
	require.Equal(t, wadFrac(18, 100), params.RateMultiplier)
}

func TestProtocolParamsRejectsInvertedFactors(t *testing.T) {
	backend := protocolBackend()
	backend.values["getCollateralFactor"] = wadFrac(90, 100)
	reader, err := NewReader(context.Background(), backend, testChain, testAddresses())
	require.NoError(t, err)

	_, err = reader.ProtocolParams(context.Background())
	require.ErrorIs(t, err, risk.ErrBadConfig)
}

func TestReaderRechecksChainPerBatch(t *testing.T) {
	backend := protocolBackend()
	reader, err := NewReader(context.Background(), backend, testChain, testAddresses())
	require.NoError(t, err)

	// The endpoint starts serving a different chain after construction.
	backend.chainID = big.NewInt(1)
	_, err = reader.ProtocolParams(context.Background())
	require.ErrorIs(t, err, ErrWrongNetwork)
	_, err = reader.UserPosition(context.Background(), common.Address{})
	require.ErrorIs(t, err, ErrWrongNetwork)
	_, err = reader.TokenBalances(context.Background(), common.Address{})
	require.ErrorIs(t, err, ErrWrongNetwork)
}

func TestUserPositionReads(t *testing.T) {
	backend := protocolBackend()
	reader, err := NewReader(context.Background(), backend, testChain, testAddresses())
	require.NoError(t, err)

	raw, err := reader.UserPosition(context.Background(), common.HexToAddress("0xBEEF"))
	require.NoError(t, err)
	require.Equal(t, wadInt(1), raw.CollateralETH)
	require.Equal(t, wadInt(1600), raw.MaxBorrow)
	require.Equal(t, wadInt(500), raw.DebtBalance)
	require.Equal(t, wadFrac(34, 10), raw.HealthFactor)
}

func TestTokenBalancesCombinesSources(t *testing.T) {
	backend := protocolBackend()
	reader, err := NewReader(context.Background(), backend, testChain, testAddresses())
	require.NoError(t, err)

	balances, err := reader.TokenBalances(context.Background(), common.HexToAddress("0xBEEF"))
	require.NoError(t, err)
	require.Equal(t, wadInt(5), balances.ETH)
	require.Equal(t, wadInt(750), balances.CNGN)
	require.Equal(t, wadInt(100), balances.CNGNAllowance)
}

func TestCallFailureClassifiesAsRemote(t *testing.T) {
	backend := protocolBackend()
	reader, err := NewReader(context.Background(), backend, testChain, testAddresses())
	require.NoError(t, err)

	backend.callErr = errors.New("connection reset")
	_, err = reader.ProtocolParams(context.Background())
	require.ErrorIs(t, err, ErrRemoteCallFailed)
	require.Equal(t, TagRemoteCallFailed, Classify(err))
}
