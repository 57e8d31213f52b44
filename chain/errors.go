package chain

import (
	"errors"

	"cngnlend/risk"
	"cngnlend/wad"
)

var (
	// ErrWrongNetwork marks calls issued while the connected node reports a
	// chain ID other than the configured target. Distinct from contract
	// failures: traffic is refused, never misrouted.
	ErrWrongNetwork = errors.New("chain: connected to wrong network")
	// ErrRemoteCallFailed wraps transport and RPC level failures.
	ErrRemoteCallFailed = errors.New("chain: remote call failed")
	// ErrTransactionReverted marks a mined transaction whose receipt
	// reports failure.
	ErrTransactionReverted = errors.New("chain: transaction reverted")
	// ErrTransactionRejected marks a signature that was declined or a
	// locked signing account.
	ErrTransactionRejected = errors.New("chain: transaction rejected by signer")
	// ErrStaleProjection marks a projection superseded by newer input. It
	// is discarded silently, never shown to users.
	ErrStaleProjection = errors.New("chain: stale projection")
)

// Tag is the coarse error classification attached to every failure that
// reaches the display layer. Raw messages travel alongside the tag; they
// are never surfaced without one.
type Tag string

const (
	TagInvalidAmount       Tag = "INVALID_AMOUNT"
	TagConfiguration       Tag = "CONFIGURATION_ERROR"
	TagWrongNetwork        Tag = "WRONG_NETWORK"
	TagTransactionRejected Tag = "TRANSACTION_REJECTED"
	TagTransactionReverted Tag = "TRANSACTION_REVERTED"
	TagRemoteCallFailed    Tag = "REMOTE_CALL_FAILED"
	TagStaleProjection     Tag = "STALE_PROJECTION"
)

// Classify maps an error chain onto the display taxonomy. Unknown errors
// from the remote boundary default to RemoteCallFailed so nothing escapes
// unclassified.
func Classify(err error) Tag {
	switch {
	case errors.Is(err, wad.ErrInvalidAmount):
		return TagInvalidAmount
	case errors.Is(err, risk.ErrBadConfig):
		return TagConfiguration
	case errors.Is(err, ErrWrongNetwork):
		return TagWrongNetwork
	case errors.Is(err, ErrTransactionRejected):
		return TagTransactionRejected
	case errors.Is(err, ErrTransactionReverted):
		return TagTransactionReverted
	case errors.Is(err, ErrStaleProjection):
		return TagStaleProjection
	default:
		return TagRemoteCallFailed
	}
}
