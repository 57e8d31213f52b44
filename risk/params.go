package risk

import (
	"errors"
	"fmt"
	"math/big"

	"cngnlend/wad"
)

// ErrBadConfig signals that protocol parameters read from the contracts are
// inconsistent. Every projection over such a snapshot is meaningless, so
// callers must treat this as fatal rather than retry.
var ErrBadConfig = errors.New("risk: protocol parameters misconfigured")

// Params is an immutable snapshot of the protocol's risk configuration and
// market aggregates. All values are WAD-scaled big integers read straight
// from the contracts; the snapshot is replaced wholesale on refresh, never
// mutated in place.
type Params struct {
	// CollateralFactor is the maximum borrowable fraction of collateral
	// value, Scale == 100%.
	CollateralFactor *big.Int
	// LiquidationThreshold is the collateral-value fraction at which a
	// position becomes liquidatable. Always above the collateral factor.
	LiquidationThreshold *big.Int
	// ReserveFactor is the interest share routed to protocol reserves.
	ReserveFactor *big.Int
	// CloseFactor caps the debt fraction repayable in one liquidation.
	CloseFactor *big.Int
	// LiquidationBonus is the collateral discount granted to liquidators.
	LiquidationBonus *big.Int
	// EthPrice is the oracle price of the collateral asset in cNGN.
	EthPrice *big.Int
	// BorrowRate and SupplyRate are per-second WAD rates.
	BorrowRate *big.Int
	SupplyRate *big.Int
	// BaseRate and RateMultiplier are the interest model constants the
	// borrow rate is derived from, annual WAD fractions.
	BaseRate       *big.Int
	RateMultiplier *big.Int
	// Market aggregates.
	TotalSupply        *big.Int
	TotalBorrows       *big.Int
	Utilization        *big.Int
	AvailableLiquidity *big.Int
}

// Clone returns a deep copy of the snapshot.
func (p Params) Clone() Params {
	clone := Params{}
	clone.CollateralFactor = copyInt(p.CollateralFactor)
	clone.LiquidationThreshold = copyInt(p.LiquidationThreshold)
	clone.ReserveFactor = copyInt(p.ReserveFactor)
	clone.CloseFactor = copyInt(p.CloseFactor)
	clone.LiquidationBonus = copyInt(p.LiquidationBonus)
	clone.EthPrice = copyInt(p.EthPrice)
	clone.BorrowRate = copyInt(p.BorrowRate)
	clone.SupplyRate = copyInt(p.SupplyRate)
	clone.BaseRate = copyInt(p.BaseRate)
	clone.RateMultiplier = copyInt(p.RateMultiplier)
	clone.TotalSupply = copyInt(p.TotalSupply)
	clone.TotalBorrows = copyInt(p.TotalBorrows)
	clone.Utilization = copyInt(p.Utilization)
	clone.AvailableLiquidity = copyInt(p.AvailableLiquidity)
	return clone
}

// CheckFactors reports whether the collateral factor sits strictly below
// the liquidation threshold. A false result means liquidation could trigger
// before the borrow limit is reached and must be treated as a fatal
// configuration error from the contract layer.
func CheckFactors(p Params) bool {
	if p.CollateralFactor == nil || p.LiquidationThreshold == nil {
		return false
	}
	return p.CollateralFactor.Cmp(p.LiquidationThreshold) < 0
}

// Validate asserts the snapshot invariants: 0 < collateralFactor <
// liquidationThreshold <= Scale and a positive oracle price.
func (p Params) Validate() error {
	if p.CollateralFactor == nil || p.CollateralFactor.Sign() <= 0 {
		return fmt.Errorf("%w: collateral factor must be positive", ErrBadConfig)
	}
	if p.LiquidationThreshold == nil || p.LiquidationThreshold.Sign() <= 0 {
		return fmt.Errorf("%w: liquidation threshold must be positive", ErrBadConfig)
	}
	if !CheckFactors(p) {
		return fmt.Errorf("%w: collateral factor %s >= liquidation threshold %s",
			ErrBadConfig, p.CollateralFactor, p.LiquidationThreshold)
	}
	if p.LiquidationThreshold.Cmp(wad.Scale) > 0 {
		return fmt.Errorf("%w: liquidation threshold %s exceeds scale", ErrBadConfig, p.LiquidationThreshold)
	}
	if p.EthPrice == nil || p.EthPrice.Sign() <= 0 {
		return fmt.Errorf("%w: oracle price is zero", ErrBadConfig)
	}
	return nil
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
