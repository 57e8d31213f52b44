package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"cngnlend/observability"
	"cngnlend/risk"
	"cngnlend/wad"
)

// StateReader is the contract read surface the synchronizer depends on.
// *chain.Reader satisfies it; tests substitute fakes.
type StateReader interface {
	ProtocolParams(ctx context.Context) (risk.Params, error)
	UserPosition(ctx context.Context, account common.Address) (risk.RawPosition, error)
	TokenBalances(ctx context.Context, account common.Address) (risk.Balances, error)
}

// Synchronizer is the only writer of the shared snapshot store. It reads
// protocol and account state from the chain, derives the position view,
// and swaps the result in atomically. The gate awaits a refresh after
// every confirmed transaction so displayed balances are never stale
// relative to a just-confirmed action.
type Synchronizer struct {
	reader   StateReader
	store    *Store
	account  common.Address
	interval time.Duration
	logger   *slog.Logger
}

// New wires a synchronizer for the given account.
func New(reader StateReader, store *Store, account common.Address, interval time.Duration, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Synchronizer{reader: reader, store: store, account: account, interval: interval, logger: logger}
}

// Store exposes the snapshot store for consumers.
func (s *Synchronizer) Store() *Store { return s.store }

// Account returns the tracked account address.
func (s *Synchronizer) Account() common.Address { return s.account }

// RefreshProtocol reads and validates the protocol parameter set and swaps
// it into the store. A violated parameter invariant surfaces as
// risk.ErrBadConfig and leaves the previous snapshot in place.
func (s *Synchronizer) RefreshProtocol(ctx context.Context) error {
	start := time.Now()
	params, err := s.reader.ProtocolParams(ctx)
	if err == nil {
		err = params.Validate()
	}
	observability.Gateway().ObserveRefresh("protocol", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("refresh protocol: %w", err)
	}
	s.store.swap(func(snap *Snapshot) {
		snap.Params = params
	})
	return nil
}

// RefreshUser reads the account's raw position and wallet balances,
// derives the position against the current parameter snapshot, and swaps
// both in together.
func (s *Synchronizer) RefreshUser(ctx context.Context) error {
	start := time.Now()
	raw, err := s.reader.UserPosition(ctx, s.account)
	if err == nil {
		var balances risk.Balances
		balances, err = s.reader.TokenBalances(ctx, s.account)
		if err == nil {
			params := s.store.Current().Params
			position := risk.Derive(raw, params)
			s.store.swap(func(snap *Snapshot) {
				snap.Position = position
				snap.Balances = balances
				snap.HasUser = true
			})
			observability.Gateway().SetHealthFactor(position.HealthFactor, wad.Scale)
		}
	}
	observability.Gateway().ObserveRefresh("user", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("refresh user: %w", err)
	}
	return nil
}

// RefreshAll refreshes protocol parameters first so the user derivation
// sees the newest factor set.
func (s *Synchronizer) RefreshAll(ctx context.Context) error {
	if err := s.RefreshProtocol(ctx); err != nil {
		return err
	}
	return s.RefreshUser(ctx)
}

// Run polls on the configured interval until the context is cancelled.
// Individual failures are logged and the previous snapshot stays visible;
// the next tick retries.
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.RefreshAll(ctx); err != nil {
		s.logger.Error("initial refresh failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshAll(ctx); err != nil {
				s.logger.Warn("refresh failed", "error", err)
			}
		}
	}
}
