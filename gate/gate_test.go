package gate

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cngnlend/chain"
	"cngnlend/risk"
	"cngnlend/syncer"
	"cngnlend/wad"
)

func wadInt(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), wad.Scale)
}

func wadFrac(numerator, denominator int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(numerator), wad.Scale)
	return v.Quo(v, big.NewInt(denominator))
}

type fakeReader struct {
	params   risk.Params
	raw      risk.RawPosition
	balances risk.Balances
}

func (f *fakeReader) ProtocolParams(context.Context) (risk.Params, error) {
	return f.params.Clone(), nil
}

func (f *fakeReader) UserPosition(context.Context, common.Address) (risk.RawPosition, error) {
	return f.raw, nil
}

func (f *fakeReader) TokenBalances(context.Context, common.Address) (risk.Balances, error) {
	return f.balances, nil
}

type fakeWriter struct {
	calls   []string
	amounts []*big.Int
	failOn  string
	failErr error
	block   chan struct{}
	entered chan struct{}
	nextTx  byte
}

func (f *fakeWriter) From() common.Address { return common.HexToAddress("0xBEEF") }

func (f *fakeWriter) record(call string, amount *big.Int) (common.Hash, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.calls = append(f.calls, call)
	f.amounts = append(f.amounts, amount)
	if f.failOn == call {
		return common.Hash{}, f.failErr
	}
	f.nextTx++
	return common.Hash{f.nextTx}, nil
}

func (f *fakeWriter) DepositCollateral(_ context.Context, amount *big.Int) (common.Hash, error) {
	return f.record("deposit", amount)
}

func (f *fakeWriter) WithdrawCollateral(_ context.Context, amount *big.Int, _ common.Address) (common.Hash, error) {
	return f.record("withdraw", amount)
}

func (f *fakeWriter) Borrow(_ context.Context, amount *big.Int, _ common.Address) (common.Hash, error) {
	return f.record("borrow", amount)
}

func (f *fakeWriter) Repay(_ context.Context, _ common.Address, amount *big.Int) (common.Hash, error) {
	return f.record("repay", amount)
}

func (f *fakeWriter) ApproveBorrowAsset(_ context.Context, amount *big.Int) (common.Hash, error) {
	return f.record("approve", amount)
}

type countingRefresher struct {
	sync  *syncer.Synchronizer
	count int
}

func (c *countingRefresher) RefreshAll(ctx context.Context) error {
	c.count++
	return c.sync.RefreshAll(ctx)
}

func testParams() risk.Params {
	return risk.Params{
		CollateralFactor:     wadFrac(80, 100),
		LiquidationThreshold: wadFrac(85, 100),
		ReserveFactor:        wadFrac(10, 100),
		CloseFactor:          wadFrac(60, 100),
		LiquidationBonus:     wadFrac(105, 100),
		EthPrice:             wadInt(2000),
	}
}

func newTestGate(t *testing.T, reader *fakeReader, writer *fakeWriter) (*Gate, *countingRefresher) {
	t.Helper()
	store := syncer.NewStore()
	sync := syncer.New(reader, store, writer.From(), 0, nil)
	require.NoError(t, sync.RefreshAll(context.Background()))
	refresher := &countingRefresher{sync: sync}
	return New(store, writer, refresher, nil), refresher
}

func solventReader() *fakeReader {
	return &fakeReader{
		params: testParams(),
		raw: risk.RawPosition{
			CollateralETH:   wadInt(1),
			CollateralValue: wadInt(2000),
			DebtBalance:     big.NewInt(0),
			MaxBorrow:       wadInt(1600),
		},
		balances: risk.Balances{
			ETH:           wadInt(5),
			CNGN:          wadInt(3000),
			CNGNAllowance: big.NewInt(0),
		},
	}
}

func TestEvaluateRejectsInvalidAmounts(t *testing.T) {
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	for _, input := range []string{"", "0", "-5", "abc"} {
		eval := g.Evaluate(Borrow, input)
		require.Equal(t, Blocked, eval.State, "input %q", input)
		require.Equal(t, chain.TagInvalidAmount, eval.Tag)
	}
}

func TestEvaluateBlocksOnMisconfiguredParams(t *testing.T) {
	reader := solventReader()
	reader.params.CollateralFactor = reader.params.LiquidationThreshold
	store := syncer.NewStore()
	sync := syncer.New(reader, store, common.Address{}, 0, nil)
	// The refresh itself refuses the snapshot; evaluating against the
	// empty store blocks on configuration as well.
	require.Error(t, sync.RefreshAll(context.Background()))
	g := New(store, &fakeWriter{}, &countingRefresher{sync: sync}, nil)

	eval := g.Evaluate(Borrow, "10")
	require.Equal(t, Blocked, eval.State)
	require.Equal(t, chain.TagConfiguration, eval.Tag)
}

func TestEvaluateBorrowSingleStep(t *testing.T) {
	// 1 ETH posted, borrowing 1000 cNGN needs only 0.625 ETH: no top-up.
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	eval := g.Evaluate(Borrow, "1000")
	require.Equal(t, ReadySingleStep, eval.State)
	require.Equal(t, wadFrac(625, 1000), eval.RequiredCollateral)
	require.Nil(t, eval.CollateralShortfall)
}

func TestEvaluateBorrowMultiStepShortfall(t *testing.T) {
	// Borrowing 4000 cNGN needs 2.5 ETH; 1 is posted, so a 1.5 ETH
	// deposit sub-step is required first.
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	eval := g.Evaluate(Borrow, "4000")
	require.Equal(t, ReadyMultiStep, eval.State)
	require.Equal(t, wadFrac(25, 10), eval.RequiredCollateral)
	require.Equal(t, wadFrac(15, 10), eval.CollateralShortfall)
}

func TestEvaluateBorrowBeforeUserSnapshot(t *testing.T) {
	// Protocol parameters landed but the user refresh has not: every
	// position field is still nil. The evaluation must block, not fault.
	reader := solventReader()
	store := syncer.NewStore()
	sync := syncer.New(reader, store, common.Address{}, 0, nil)
	require.NoError(t, sync.RefreshProtocol(context.Background()))
	g := New(store, &fakeWriter{}, &countingRefresher{sync: sync}, nil)

	eval := g.Evaluate(Borrow, "1000")
	require.Equal(t, Blocked, eval.State)
	require.Equal(t, chain.TagInvalidAmount, eval.Tag)
}

func TestEvaluateBorrowBlockedWhenLiquidatable(t *testing.T) {
	// 0.5 ETH at 1000 against 1000 cNGN debt: health factor 0.425.
	reader := solventReader()
	reader.params.EthPrice = wadInt(1000)
	reader.raw = risk.RawPosition{
		CollateralETH:   wadFrac(5, 10),
		CollateralValue: wadInt(500),
		DebtBalance:     wadInt(1000),
	}
	g, _ := newTestGate(t, reader, &fakeWriter{})

	// Headroom path: the borrow limit of 400 is already exhausted.
	eval := g.Evaluate(Borrow, "100")
	require.Equal(t, Blocked, eval.State)

	// Top-up path: a wallet-covered deposit still leaves the projected
	// health factor below 1, so the multi-step offer is refused too.
	eval = g.Evaluate(Borrow, "4000")
	require.Equal(t, Blocked, eval.State)
	require.True(t, eval.ProjectedHealthFactor.Cmp(wad.Scale) < 0)
}

func TestEvaluateBorrowBlockedWhenWalletCannotCoverShortfall(t *testing.T) {
	reader := solventReader()
	reader.balances.ETH = wadFrac(1, 10)
	g, _ := newTestGate(t, reader, &fakeWriter{})
	eval := g.Evaluate(Borrow, "4000")
	require.Equal(t, Blocked, eval.State)
}

func TestEvaluateWithdrawBlockedOnHealth(t *testing.T) {
	reader := solventReader()
	reader.raw.DebtBalance = wadInt(1000)
	g, _ := newTestGate(t, reader, &fakeWriter{})

	// Withdrawing nearly everything would push the health factor below 1.
	eval := g.Evaluate(Withdraw, "0.9")
	require.Equal(t, Blocked, eval.State)

	// A modest withdrawal stays healthy.
	eval = g.Evaluate(Withdraw, "0.1")
	require.Equal(t, ReadySingleStep, eval.State)
	require.True(t, eval.ProjectedHealthFactor.Cmp(wad.Scale) >= 0)
}

func TestEvaluateWithdrawCeilingIsCollateral(t *testing.T) {
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	eval := g.Evaluate(Withdraw, "2")
	require.Equal(t, Blocked, eval.State)
}

func TestEvaluateDepositCeilingIsWallet(t *testing.T) {
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	require.Equal(t, Blocked, g.Evaluate(Deposit, "6").State)
	require.Equal(t, ReadySingleStep, g.Evaluate(Deposit, "5").State)
}

func TestEvaluateRepayAllowancePath(t *testing.T) {
	reader := solventReader()
	reader.raw.DebtBalance = wadInt(1000)
	g, _ := newTestGate(t, reader, &fakeWriter{})

	// No allowance: approve sub-step required, padded by 0.01 cNGN.
	eval := g.Evaluate(Repay, "500")
	require.Equal(t, ReadyMultiStep, eval.State)
	wantApproval := new(big.Int).Add(wadInt(500), wadFrac(1, 100))
	require.Equal(t, wantApproval, eval.ApprovalAmount)

	// Sufficient allowance: single step.
	reader.balances.CNGNAllowance = wadInt(1000)
	g2, _ := newTestGate(t, reader, &fakeWriter{})
	eval = g2.Evaluate(Repay, "500")
	require.Equal(t, ReadySingleStep, eval.State)
}

func TestSubmitMultiStepBorrowOrdersDepositFirst(t *testing.T) {
	reader := solventReader()
	writer := &fakeWriter{}
	g, refresher := newTestGate(t, reader, writer)

	eval := g.Evaluate(Borrow, "4000")
	require.Equal(t, ReadyMultiStep, eval.State)

	result, err := g.Submit(context.Background(), eval)
	require.NoError(t, err)
	require.Equal(t, Succeeded, result.State)
	require.Equal(t, []string{"deposit", "borrow"}, writer.calls)
	require.Equal(t, wadFrac(15, 10), writer.amounts[0])
	require.Equal(t, wadInt(4000), writer.amounts[1])
	require.Len(t, result.StepHashes, 1)
	// One refresh after the sub-step confirmation, one after the borrow.
	require.Equal(t, 2, refresher.count)
}

func TestSubmitRepayApprovesFirst(t *testing.T) {
	reader := solventReader()
	reader.raw.DebtBalance = wadInt(1000)
	writer := &fakeWriter{}
	g, _ := newTestGate(t, reader, writer)

	eval := g.Evaluate(Repay, "500")
	require.Equal(t, ReadyMultiStep, eval.State)

	result, err := g.Submit(context.Background(), eval)
	require.NoError(t, err)
	require.Equal(t, Succeeded, result.State)
	require.Equal(t, []string{"approve", "repay"}, writer.calls)
}

func TestSubmitRejectsStaleEvaluation(t *testing.T) {
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	stale := g.Evaluate(Borrow, "1000")
	g.Evaluate(Borrow, "1100") // supersedes

	_, err := g.Submit(context.Background(), stale)
	require.ErrorIs(t, err, chain.ErrStaleProjection)
}

func TestSubmitRefusesBlockedEvaluation(t *testing.T) {
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	eval := g.Evaluate(Borrow, "0")
	_, err := g.Submit(context.Background(), eval)
	require.Error(t, err)
}

func TestSubmitGuardsReentrancy(t *testing.T) {
	writer := &fakeWriter{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	g, _ := newTestGate(t, solventReader(), writer)

	eval := g.Evaluate(Deposit, "1")
	done := make(chan Result, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := g.Submit(context.Background(), eval)
		errCh <- err
		done <- result
	}()

	// Wait until the first submission has reached the contract call, then
	// a second submission of the same kind must be refused.
	<-writer.entered
	_, err := g.Submit(context.Background(), eval)
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	close(writer.block)
	require.NoError(t, <-errCh)
	result := <-done
	require.Equal(t, Succeeded, result.State)
}

func TestSubmitFailurePreservesAmountAndClassifies(t *testing.T) {
	writer := &fakeWriter{
		failOn:  "borrow",
		failErr: fmt.Errorf("%w: execution reverted: insufficient liquidity", chain.ErrTransactionReverted),
	}
	g, _ := newTestGate(t, solventReader(), writer)

	eval := g.Evaluate(Borrow, "1000")
	result, err := g.Submit(context.Background(), eval)
	require.NoError(t, err)
	require.Equal(t, Failed, result.State)
	require.Equal(t, chain.TagTransactionReverted, result.Tag)
	require.Contains(t, result.RawError, "insufficient liquidity")
	require.Equal(t, "1000", g.TypedAmount(Borrow))

	// The machine is back to Idle: a fresh evaluation can submit again.
	writer.failOn = ""
	eval = g.Evaluate(Borrow, "1000")
	result, err = g.Submit(context.Background(), eval)
	require.NoError(t, err)
	require.Equal(t, Succeeded, result.State)
	require.Empty(t, g.TypedAmount(Borrow))
}

func TestCancelDiscardsSession(t *testing.T) {
	g, _ := newTestGate(t, solventReader(), &fakeWriter{})
	eval := g.Evaluate(Deposit, "1")
	g.Cancel(Deposit)
	_, err := g.Submit(context.Background(), eval)
	require.ErrorIs(t, err, chain.ErrStaleProjection)
}

func TestPercentageAmountExactBoundary(t *testing.T) {
	debt := wadInt(1000)
	balance := wadInt(3000)
	// 100% with ample balance is exactly the debt.
	require.Equal(t, debt, PercentageAmount(debt, balance, 100))
	// 100% clamped by a smaller balance is exactly the balance.
	small := wadFrac(9995, 10)
	require.Equal(t, small, PercentageAmount(debt, small, 100))
	// 25% floors in integer WAD math.
	require.Equal(t, wadInt(250), PercentageAmount(debt, balance, 25))
	// Degenerate inputs.
	require.Equal(t, int64(0), PercentageAmount(nil, balance, 50).Int64())
	require.Equal(t, int64(0), PercentageAmount(debt, balance, 0).Int64())
}
