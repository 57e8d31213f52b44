package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"cngnlend/chain"
	"cngnlend/observability"
	"cngnlend/syncer"
)

// Kind identifies one of the four user actions.
type Kind string

const (
	Deposit  Kind = "deposit"
	Withdraw Kind = "withdraw"
	Borrow   Kind = "borrow"
	Repay    Kind = "repay"
)

// State is the per-action machine state.
type State string

const (
	Idle            State = "idle"
	Validating      State = "validating"
	Blocked         State = "blocked"
	ReadySingleStep State = "ready"
	ReadyMultiStep  State = "ready_multi_step"
	Submitting      State = "submitting"
	Succeeded       State = "succeeded"
	Failed          State = "failed"
)

// ErrSubmissionInFlight guards against duplicate submissions of the same
// action kind while one is outstanding.
var ErrSubmissionInFlight = errors.New("gate: submission already in flight")

// TxWriter is the state-changing contract surface the gate drives.
// *chain.Writer satisfies it; tests substitute fakes.
type TxWriter interface {
	From() common.Address
	DepositCollateral(ctx context.Context, amount *big.Int) (common.Hash, error)
	WithdrawCollateral(ctx context.Context, amount *big.Int, recipient common.Address) (common.Hash, error)
	Borrow(ctx context.Context, amount *big.Int, recipient common.Address) (common.Hash, error)
	Repay(ctx context.Context, borrower common.Address, amount *big.Int) (common.Hash, error)
	ApproveBorrowAsset(ctx context.Context, amount *big.Int) (common.Hash, error)
}

// Refresher re-reads remote state after a confirmed transaction. The gate
// awaits it before reporting success so no caller ever renders balances
// older than the action they just confirmed.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Result is the terminal outcome of one submission.
type Result struct {
	Kind  Kind
	State State
	// TxHash is the primary action's transaction. StepHashes lists the
	// confirmed sub-step transactions (deposit top-up, approval) in order.
	TxHash     common.Hash
	StepHashes []common.Hash
	// Tag and RawError classify a failure; RawError carries the remote
	// message verbatim.
	Tag      chain.Tag
	RawError string
	// AmountInput echoes the typed amount so a failed form session does
	// not lose it.
	AmountInput string
}

// Gate validates and submits user actions. One machine per action kind:
// evaluations run on every amount change, submissions are serialized per
// kind, and a submission only succeeds after on-chain confirmation plus a
// completed state refresh.
type Gate struct {
	mu        sync.Mutex
	store     *syncer.Store
	writer    TxWriter
	refresher Refresher
	logger    *slog.Logger

	seq      map[Kind]uint64
	inFlight map[Kind]bool
	typed    map[Kind]string
}

// New wires a gate over the shared snapshot store.
func New(store *syncer.Store, writer TxWriter, refresher Refresher, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:     store,
		writer:    writer,
		refresher: refresher,
		logger:    logger,
		seq:       make(map[Kind]uint64),
		inFlight:  make(map[Kind]bool),
		typed:     make(map[Kind]string),
	}
}

// LatestSeq returns the newest evaluation sequence issued for the kind.
// An evaluation carrying an older sequence is stale and must be discarded
// silently.
func (g *Gate) LatestSeq(kind Kind) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq[kind]
}

// TypedAmount returns the amount preserved from the last failed
// submission of the kind, if any.
func (g *Gate) TypedAmount(kind Kind) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.typed[kind]
}

// Cancel discards the pending form session for the kind. Nothing on-chain
// is affected; an already-broadcast transaction cannot be withdrawn.
func (g *Gate) Cancel(kind Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.typed, kind)
	g.seq[kind]++
}

// Submit executes a previously evaluated action. Multi-step evaluations
// run their sub-step first and only submit the primary action once the
// sub-step's transaction is confirmed and a refresh has landed, because
// the primary call's arguments depend on state only true after that
// confirmation.
func (g *Gate) Submit(ctx context.Context, eval Evaluation) (Result, error) {
	result := Result{Kind: eval.Kind, AmountInput: eval.AmountInput}

	g.mu.Lock()
	if g.inFlight[eval.Kind] {
		g.mu.Unlock()
		return result, ErrSubmissionInFlight
	}
	if eval.Seq != g.seq[eval.Kind] {
		g.mu.Unlock()
		return result, fmt.Errorf("%w: evaluation %d superseded by %d", chain.ErrStaleProjection, eval.Seq, g.seq[eval.Kind])
	}
	if eval.State != ReadySingleStep && eval.State != ReadyMultiStep {
		g.mu.Unlock()
		return result, fmt.Errorf("gate: cannot submit from state %q", eval.State)
	}
	g.inFlight[eval.Kind] = true
	g.mu.Unlock()

	start := time.Now()
	defer func() {
		g.mu.Lock()
		g.inFlight[eval.Kind] = false
		g.mu.Unlock()
	}()

	result = g.run(ctx, eval)
	outcome := string(result.State)
	if result.State == Failed {
		outcome = string(result.Tag)
	}
	observability.Gateway().ObserveAction(string(eval.Kind), outcome, time.Since(start))
	return result, nil
}

func (g *Gate) run(ctx context.Context, eval Evaluation) Result {
	result := Result{Kind: eval.Kind, State: Submitting, AmountInput: eval.AmountInput}
	from := g.writer.From()

	if eval.State == ReadyMultiStep {
		hash, err := g.runStep(ctx, eval)
		if err != nil {
			return g.fail(eval, result, err)
		}
		result.StepHashes = append(result.StepHashes, hash)
	}

	var hash common.Hash
	var err error
	switch eval.Kind {
	case Deposit:
		hash, err = g.writer.DepositCollateral(ctx, eval.Amount)
	case Withdraw:
		hash, err = g.writer.WithdrawCollateral(ctx, eval.Amount, from)
	case Borrow:
		hash, err = g.writer.Borrow(ctx, eval.Amount, from)
	case Repay:
		hash, err = g.writer.Repay(ctx, from, eval.Amount)
	default:
		err = fmt.Errorf("gate: unknown action %q", eval.Kind)
	}
	if err != nil {
		return g.fail(eval, result, err)
	}
	result.TxHash = hash

	// Confirmation alone is not success: the snapshot must reflect the
	// confirmed action before the caller hears about it.
	if err := g.refresher.RefreshAll(ctx); err != nil {
		return g.fail(eval, result, err)
	}

	g.mu.Lock()
	delete(g.typed, eval.Kind)
	g.mu.Unlock()

	result.State = Succeeded
	g.logger.Info("action confirmed",
		"action", eval.Kind, "tx", hash.Hex(), "steps", len(result.StepHashes))
	return result
}

// runStep executes the sub-step a multi-step evaluation requires: the
// collateral top-up before a borrow, or the allowance approval before a
// repay. The returned hash is already confirmed, and the refresh that
// follows makes the new collateral or allowance visible to the primary
// call.
func (g *Gate) runStep(ctx context.Context, eval Evaluation) (common.Hash, error) {
	var hash common.Hash
	var err error
	switch eval.Kind {
	case Borrow:
		hash, err = g.writer.DepositCollateral(ctx, eval.CollateralShortfall)
	case Repay:
		hash, err = g.writer.ApproveBorrowAsset(ctx, eval.ApprovalAmount)
	default:
		return common.Hash{}, fmt.Errorf("gate: action %q has no sub-step", eval.Kind)
	}
	if err != nil {
		return common.Hash{}, err
	}
	if err := g.refresher.RefreshAll(ctx); err != nil {
		return hash, err
	}
	return hash, nil
}

// fail classifies the error, preserves the typed amount, and reports the
// raw message verbatim alongside the taxonomy tag. The machine returns to
// Idle; retrying is a manual decision, never automatic.
func (g *Gate) fail(eval Evaluation, result Result, err error) Result {
	g.mu.Lock()
	g.typed[eval.Kind] = eval.AmountInput
	g.mu.Unlock()

	result.State = Failed
	result.Tag = chain.Classify(err)
	result.RawError = err.Error()
	g.logger.Warn("action failed", "action", eval.Kind, "tag", result.Tag, "error", err)
	return result
}
