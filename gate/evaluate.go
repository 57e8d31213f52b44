package gate

import (
	"math/big"

	"cngnlend/chain"
	"cngnlend/risk"
	"cngnlend/syncer"
	"cngnlend/wad"
)

// approvePad is the extra allowance granted on the approve sub-step so a
// repayment is not refused over interest accrued between approval and
// settlement. 0.01 cNGN.
var approvePad = mustWad("10000000000000000")

// Evaluation is the outcome of validating a proposed action against the
// current snapshot. It is pure: nothing is submitted until Submit.
type Evaluation struct {
	Kind        Kind
	State       State
	AmountInput string
	// Amount is the parsed WAD quantity; nil while blocked on parse.
	Amount *big.Int
	// Reason explains a Blocked state; Tag classifies it.
	Reason string
	Tag    chain.Tag
	// ProjectedHealthFactor is populated for Borrow and Withdraw.
	ProjectedHealthFactor *big.Int
	// RequiredCollateral and CollateralShortfall drive the Borrow
	// multi-step path; ApprovalAmount drives the Repay one.
	RequiredCollateral  *big.Int
	CollateralShortfall *big.Int
	ApprovalAmount      *big.Int
	// Seq orders evaluations per kind; older than the gate's latest means
	// stale, discarded silently.
	Seq uint64
}

// Evaluate validates the typed amount against the current snapshot and
// decides whether the action is submittable and whether a sub-step must
// run first. Call it on every amount change; each call supersedes the
// previous evaluation of the same kind.
func (g *Gate) Evaluate(kind Kind, amountInput string) Evaluation {
	g.mu.Lock()
	g.seq[kind]++
	seq := g.seq[kind]
	g.mu.Unlock()

	eval := Evaluation{Kind: kind, State: Validating, AmountInput: amountInput, Seq: seq}
	snap := g.store.Current()

	if !risk.CheckFactors(snap.Params) {
		return blocked(eval, chain.TagConfiguration, "protocol parameters misconfigured")
	}
	if !wad.IsValidAmount(amountInput) {
		return blocked(eval, chain.TagInvalidAmount, "enter an amount greater than zero")
	}
	amount, err := wad.Parse(amountInput)
	if err != nil || amount.Sign() <= 0 {
		return blocked(eval, chain.TagInvalidAmount, "enter an amount greater than zero")
	}
	eval.Amount = amount

	switch kind {
	case Deposit:
		return g.evaluateDeposit(eval, snap)
	case Withdraw:
		return g.evaluateWithdraw(eval, snap)
	case Borrow:
		return g.evaluateBorrow(eval, snap)
	case Repay:
		return g.evaluateRepay(eval, snap)
	default:
		return blocked(eval, chain.TagInvalidAmount, "unknown action")
	}
}

// evaluateDeposit only checks the wallet ceiling. Depositing can never
// worsen the health factor, so no projection gates it.
func (g *Gate) evaluateDeposit(eval Evaluation, snap syncer.Snapshot) Evaluation {
	if cmp(eval.Amount, snap.Balances.ETH) > 0 {
		return blocked(eval, chain.TagInvalidAmount, "amount exceeds wallet balance")
	}
	eval.State = ReadySingleStep
	return eval
}

func (g *Gate) evaluateWithdraw(eval Evaluation, snap syncer.Snapshot) Evaluation {
	if cmp(eval.Amount, snap.Position.CollateralETH) > 0 {
		return blocked(eval, chain.TagInvalidAmount, "amount exceeds deposited collateral")
	}
	projected := risk.HealthFactorAfterWithdraw(
		snap.Position.CollateralETH, snap.Position.DebtBalance, eval.Amount, snap.Params)
	eval.ProjectedHealthFactor = projected
	if snap.Position.DebtBalance.Sign() > 0 && projected.Cmp(wad.Scale) < 0 {
		return blocked(eval, chain.TagInvalidAmount, "withdrawal would leave the position liquidatable")
	}
	eval.State = ReadySingleStep
	return eval
}

func (g *Gate) evaluateBorrow(eval Evaluation, snap syncer.Snapshot) Evaluation {
	required, err := risk.RequiredCollateral(eval.Amount, snap.Params)
	if err != nil {
		return blocked(eval, chain.Classify(err), "cannot price collateral requirement")
	}
	eval.RequiredCollateral = required

	// The position may not have landed yet (startup, or a user refresh
	// failing after the protocol swap); treat absent fields as zero.
	current := orZero(snap.Position.CollateralETH)
	if cmp(required, current) > 0 {
		// Not enough collateral posted: offer the deposit-then-borrow
		// path instead of blocking on availableToBorrow.
		shortfall := new(big.Int).Sub(required, current)
		if cmp(shortfall, snap.Balances.ETH) > 0 {
			return blocked(eval, chain.TagInvalidAmount, "wallet cannot cover the required collateral top-up")
		}
		eval.CollateralShortfall = shortfall
		projected := risk.HealthFactorAfterBorrow(
			new(big.Int).Add(current, shortfall), snap.Position.DebtBalance, eval.Amount, snap.Params)
		eval.ProjectedHealthFactor = projected
		if projected.Cmp(wad.Scale) < 0 {
			return blocked(eval, chain.TagInvalidAmount, "borrow would leave the position liquidatable")
		}
		eval.State = ReadyMultiStep
		return eval
	}

	if cmp(eval.Amount, snap.Position.AvailableToBorrow) > 0 {
		return blocked(eval, chain.TagInvalidAmount, "amount exceeds available borrowing power")
	}
	projected := risk.HealthFactorAfterBorrow(current, snap.Position.DebtBalance, eval.Amount, snap.Params)
	eval.ProjectedHealthFactor = projected
	if projected.Cmp(wad.Scale) < 0 {
		return blocked(eval, chain.TagInvalidAmount, "borrow would leave the position liquidatable")
	}
	eval.State = ReadySingleStep
	return eval
}

// evaluateRepay never gates on the health factor: repaying can only
// improve it. The allowance decides the single- versus multi-step path.
func (g *Gate) evaluateRepay(eval Evaluation, snap syncer.Snapshot) Evaluation {
	if cmp(eval.Amount, snap.Balances.CNGN) > 0 {
		return blocked(eval, chain.TagInvalidAmount, "amount exceeds wallet balance")
	}
	if cmp(eval.Amount, snap.Balances.CNGNAllowance) > 0 {
		eval.ApprovalAmount = new(big.Int).Add(eval.Amount, approvePad)
		eval.State = ReadyMultiStep
		return eval
	}
	eval.State = ReadySingleStep
	return eval
}

// PercentageAmount computes the 25/50/75/100% repay shortcut:
// floor(debt * pct / 100) clamped to the smaller of debt and spendable.
// Integer WAD arithmetic throughout so the 100% shortcut lands exactly on
// the boundary the contract checks.
func PercentageAmount(debt, spendable *big.Int, pct int64) *big.Int {
	if debt == nil || debt.Sign() <= 0 || pct <= 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(debt, big.NewInt(pct))
	amount.Quo(amount, big.NewInt(100))
	if amount.Cmp(debt) > 0 {
		amount.Set(debt)
	}
	if spendable != nil && amount.Cmp(spendable) > 0 {
		amount.Set(spendable)
	}
	return amount
}

func blocked(eval Evaluation, tag chain.Tag, reason string) Evaluation {
	eval.State = Blocked
	eval.Tag = tag
	eval.Reason = reason
	return eval
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cmp(a, b *big.Int) int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	return a.Cmp(b)
}

func mustWad(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid wad constant")
	}
	return v
}
