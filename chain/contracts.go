package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Addresses pins the deployed contract set the client talks to. One
// address set per target chain; swapping sets means swapping this struct,
// never editing individual fields at runtime.
type Addresses struct {
	LendingPool       common.Address
	CollateralManager common.Address
	PriceOracle       common.Address
	BorrowAsset       common.Address
}

const lendingPoolABIJSON = `[
 {"type":"function","name":"depositCollateral","inputs":[],"outputs":[],"stateMutability":"payable"},
 {"type":"function","name":"withdrawCollateral","inputs":[{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
 {"type":"function","name":"borrow","inputs":[{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
 {"type":"function","name":"repay","inputs":[{"name":"borrower","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
 {"type":"function","name":"getBorrowBalance","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"healthFactor","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"healthFactorAfterBorrow","inputs":[{"name":"account","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"healthFactorAfterWithdrawCollateral","inputs":[{"name":"account","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"borrowIndex","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"borrowerIndex","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"totalBorrows","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"borrowRate","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"supplyRate","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"baseRate","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"multiplier","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"utilization","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getCash","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const collateralManagerABIJSON = `[
 {"type":"function","name":"getUserCollateral","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getCollateralValue","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getMaxBorrow","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getCollateralFactor","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getLiquidationThreshold","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getReserveFactor","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getCloseFactor","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"getLiquidationBonus","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const priceOracleABIJSON = `[
 {"type":"function","name":"getEthPrice","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

const erc20ABIJSON = `[
 {"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
 {"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
 {"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
 {"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

var (
	lendingPoolABI       = mustABI(lendingPoolABIJSON)
	collateralManagerABI = mustABI(collateralManagerABIJSON)
	priceOracleABI       = mustABI(priceOracleABIJSON)
	erc20ABI             = mustABI(erc20ABIJSON)
)

func mustABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic("invalid abi definition: " + err.Error())
	}
	return parsed
}
