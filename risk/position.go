package risk

import (
	"fmt"
	"math/big"

	"cngnlend/wad"
)

// Position is the derived view of one account's lending state. It is a
// pure projection over the parameter snapshot plus raw contract reads;
// nothing here is settable directly.
type Position struct {
	// CollateralETH is the pledged collateral quantity.
	CollateralETH *big.Int
	// CollateralValue is the oracle valuation of the collateral in cNGN.
	CollateralValue *big.Int
	// DebtBalance is the outstanding cNGN debt including accrued interest.
	DebtBalance *big.Int
	// HealthFactor is the risk-weighted collateral over debt, WAD scaled.
	// MaxHealthFactor when there is no debt.
	HealthFactor *big.Int
	// MaxBorrow is the contract-reported borrow ceiling.
	MaxBorrow *big.Int
	// AvailableToBorrow is max(0, MaxBorrow - DebtBalance).
	AvailableToBorrow *big.Int
	// CurrentLTV is the display loan-to-value percentage.
	CurrentLTV float64
	// LiquidationPrice is the oracle price at which the position hits
	// health factor 1.
	LiquidationPrice *big.Int
	// BorrowIndex and UserBorrowIndex track the market and per-account
	// interest accrual indexes.
	BorrowIndex     *big.Int
	UserBorrowIndex *big.Int
	// Liquidatable is set when the health factor sits below 1 with debt
	// outstanding.
	Liquidatable bool
}

// RawPosition bundles the contract reads a Position is derived from.
type RawPosition struct {
	CollateralETH   *big.Int
	CollateralValue *big.Int
	DebtBalance     *big.Int
	HealthFactor    *big.Int
	MaxBorrow       *big.Int
	BorrowIndex     *big.Int
	UserBorrowIndex *big.Int
}

// Balances holds the wallet-side token state refreshed alongside the
// position.
type Balances struct {
	// ETH is the native balance available for collateral deposits.
	ETH *big.Int
	// CNGN is the borrow-asset balance available for repayments.
	CNGN *big.Int
	// CNGNAllowance is the spending approval granted to the lending pool.
	CNGNAllowance *big.Int
}

// Derive assembles a Position from raw contract reads and the current
// parameter snapshot. The on-chain health factor is preferred when
// present; a nil reading falls back to the local projection so the caller
// always gets a defined value.
func Derive(raw RawPosition, p Params) Position {
	pos := Position{
		CollateralETH:   orZero(raw.CollateralETH),
		CollateralValue: orZero(raw.CollateralValue),
		DebtBalance:     orZero(raw.DebtBalance),
		BorrowIndex:     orZero(raw.BorrowIndex),
		UserBorrowIndex: orZero(raw.UserBorrowIndex),
	}
	if raw.MaxBorrow != nil {
		pos.MaxBorrow = new(big.Int).Set(raw.MaxBorrow)
	} else {
		pos.MaxBorrow = MaxBorrow(pos.CollateralETH, p)
	}
	if raw.HealthFactor != nil {
		pos.HealthFactor = new(big.Int).Set(raw.HealthFactor)
	} else {
		pos.HealthFactor = healthFactor(pos.CollateralETH, pos.DebtBalance, p)
	}
	pos.AvailableToBorrow = AvailableToBorrow(pos.MaxBorrow, pos.DebtBalance)
	pos.CurrentLTV = CurrentLTV(pos.DebtBalance, pos.CollateralValue)
	pos.LiquidationPrice = LiquidationPrice(pos.CollateralETH, pos.DebtBalance, p.LiquidationThreshold)
	pos.Liquidatable = pos.DebtBalance.Sign() > 0 && pos.HealthFactor.Cmp(wad.Scale) < 0
	return pos
}

// HealthBand buckets a health factor for display emphasis.
type HealthBand int

const (
	HealthLiquidatable HealthBand = iota
	HealthDanger
	HealthWarning
	HealthHealthy
)

var (
	warnBand    = mustWad("1500000000000000000") // 1.5
	dangerBand  = mustWad("1200000000000000000") // 1.2
	unsafeFloor = wad.Scale                      // 1.0
)

// BandFor classifies a WAD health factor into a display band.
func BandFor(healthFactor *big.Int) HealthBand {
	if healthFactor == nil {
		return HealthLiquidatable
	}
	switch {
	case healthFactor.Cmp(warnBand) >= 0:
		return HealthHealthy
	case healthFactor.Cmp(dangerBand) >= 0:
		return HealthWarning
	case healthFactor.Cmp(unsafeFloor) >= 0:
		return HealthDanger
	default:
		return HealthLiquidatable
	}
}

// FormatHealthFactor renders a WAD health factor with two decimals; the
// no-debt sentinel renders as the infinity glyph.
func FormatHealthFactor(healthFactor *big.Int) string {
	if healthFactor == nil {
		return "0.00"
	}
	if healthFactor.Cmp(MaxHealthFactor) == 0 {
		return "∞"
	}
	scaled := new(big.Int).Mul(healthFactor, big.NewInt(100))
	scaled.Quo(scaled, wad.Scale)
	whole, cents := new(big.Int).QuoRem(scaled, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s.%02d", whole.String(), cents.Int64())
}

func mustWad(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid wad constant")
	}
	return v
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
