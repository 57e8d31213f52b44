package risk

import (
	"fmt"
	"math/big"

	"cngnlend/wad"
)

// MaxHealthFactor is the sentinel reported for positions with no debt. It
// mirrors the type(uint256).max value the contracts return, so a locally
// projected factor and an on-chain reading compare equal.
var MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// RequiredCollateral computes the collateral quantity needed to back a
// borrow of the given size:
//
//	required = borrow * Scale / (ethPrice * collateralFactor / Scale)
//
// Each division truncates, so the projection never promises more borrowing
// power than the contract's own integer math will grant. A zero price or
// factor makes the requirement undefined and returns ErrBadConfig instead
// of dividing.
func RequiredCollateral(borrowAmount *big.Int, p Params) (*big.Int, error) {
	if borrowAmount == nil || borrowAmount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if borrowAmount.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative borrow amount", wad.ErrInvalidAmount)
	}
	if p.EthPrice == nil || p.EthPrice.Sign() == 0 || p.CollateralFactor == nil || p.CollateralFactor.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero price or collateral factor", ErrBadConfig)
	}
	denom := new(big.Int).Mul(p.EthPrice, p.CollateralFactor)
	denom.Quo(denom, wad.Scale)
	if denom.Sign() == 0 {
		return nil, fmt.Errorf("%w: collateral requirement underflow", ErrBadConfig)
	}
	required := new(big.Int).Mul(borrowAmount, wad.Scale)
	required.Quo(required, denom)
	return required, nil
}

// HealthFactorAfterBorrow projects the health factor once borrowDelta is
// added to the outstanding debt. Collateral is unchanged.
func HealthFactorAfterBorrow(collateral, debt, borrowDelta *big.Int, p Params) *big.Int {
	newDebt := add(debt, borrowDelta)
	return healthFactor(collateral, newDebt, p)
}

// HealthFactorAfterWithdraw projects the health factor once withdrawDelta
// of collateral is released. Debt is unchanged. Withdrawing more than the
// current collateral clamps to zero remaining.
func HealthFactorAfterWithdraw(collateral, debt, withdrawDelta *big.Int, p Params) *big.Int {
	remaining := sub(collateral, withdrawDelta)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return healthFactor(remaining, debt, p)
}

// healthFactor evaluates collateralValue * liquidationThreshold / Scale
// over debt, in WAD. Zero debt is the healthiest state and reports the
// MaxHealthFactor sentinel, never a divide fault.
func healthFactor(collateral, debt *big.Int, p Params) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}
	if collateral == nil || collateral.Sign() <= 0 {
		return big.NewInt(0)
	}
	if p.EthPrice == nil || p.LiquidationThreshold == nil {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(collateral, p.EthPrice)
	value.Quo(value, wad.Scale)
	weighted := new(big.Int).Mul(value, p.LiquidationThreshold)
	weighted.Quo(weighted, wad.Scale)
	hf := new(big.Int).Mul(weighted, wad.Scale)
	hf.Quo(hf, debt)
	return hf
}

// MaxSafeWithdraw returns the largest collateral withdrawal that keeps the
// projected health factor at or above safetyBuffer (a WAD margin above
// 1*Scale, typically 1.2*Scale). With no debt the full balance is safe.
// The result is never negative.
func MaxSafeWithdraw(collateral, debt *big.Int, p Params, safetyBuffer *big.Int) *big.Int {
	if collateral == nil || collateral.Sign() <= 0 {
		return big.NewInt(0)
	}
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(collateral)
	}
	if p.EthPrice == nil || p.EthPrice.Sign() == 0 || p.LiquidationThreshold == nil || p.LiquidationThreshold.Sign() == 0 {
		return big.NewInt(0)
	}
	if safetyBuffer == nil || safetyBuffer.Sign() <= 0 {
		safetyBuffer = wad.Scale
	}
	// Collateral value that must stay locked: debt * buffer / threshold,
	// then back to quantity via the oracle price. Both divisions round up
	// so slightly more collateral stays locked, which is the direction
	// that cannot violate the buffer.
	keepValue := ceilDiv(new(big.Int).Mul(debt, safetyBuffer), p.LiquidationThreshold)
	keep := ceilDiv(new(big.Int).Mul(keepValue, wad.Scale), p.EthPrice)
	if keep.Cmp(collateral) >= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(collateral, keep)
}

// LiquidationPrice is the oracle price at which the position's health
// factor reaches exactly 1:
//
//	price = debt * Scale / (collateral * liquidationThreshold / Scale)
//
// Zero collateral has no liquidation price and reports 0.
func LiquidationPrice(collateral, debt, liquidationThreshold *big.Int) *big.Int {
	if collateral == nil || collateral.Sign() == 0 || liquidationThreshold == nil || liquidationThreshold.Sign() == 0 {
		return big.NewInt(0)
	}
	if debt == nil || debt.Sign() == 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Mul(collateral, liquidationThreshold)
	denom.Quo(denom, wad.Scale)
	if denom.Sign() == 0 {
		return big.NewInt(0)
	}
	price := new(big.Int).Mul(debt, wad.Scale)
	price.Quo(price, denom)
	return price
}

// MaxBorrow computes the borrow ceiling from posted collateral:
// collateralValue * collateralFactor / Scale. The contract reports the
// authoritative figure; this local projection exists for derivations made
// before that read lands and for cross-checks.
func MaxBorrow(collateral *big.Int, p Params) *big.Int {
	if collateral == nil || collateral.Sign() <= 0 || p.EthPrice == nil || p.CollateralFactor == nil {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(collateral, p.EthPrice)
	value.Quo(value, wad.Scale)
	limit := new(big.Int).Mul(value, p.CollateralFactor)
	limit.Quo(limit, wad.Scale)
	return limit
}

// AvailableToBorrow is the remaining headroom under the borrow limit,
// clamped at zero.
func AvailableToBorrow(maxBorrow, debt *big.Int) *big.Int {
	if maxBorrow == nil {
		return big.NewInt(0)
	}
	if debt == nil || debt.Sign() <= 0 {
		return new(big.Int).Set(maxBorrow)
	}
	if maxBorrow.Cmp(debt) <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(maxBorrow, debt)
}

// CurrentLTV is the loan-to-value ratio as a display percentage. Zero
// collateral reports 0 rather than dividing.
func CurrentLTV(debtValue, collateralValue *big.Int) float64 {
	if collateralValue == nil || collateralValue.Sign() == 0 || debtValue == nil {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(debtValue, collateralValue).Float64()
	return ratio * 100
}

func ceilDiv(num, den *big.Int) *big.Int {
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

func add(a, b *big.Int) *big.Int {
	sum := big.NewInt(0)
	if a != nil {
		sum.Add(sum, a)
	}
	if b != nil {
		sum.Add(sum, b)
	}
	return sum
}

func sub(a, b *big.Int) *big.Int {
	diff := big.NewInt(0)
	if a != nil {
		diff.Add(diff, a)
	}
	if b != nil {
		diff.Sub(diff, b)
	}
	return diff
}
