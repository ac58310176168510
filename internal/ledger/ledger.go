// Package ledger implements the tiered, time-locked staking ledger: the
// tier registry, the position arena with its per-owner index, the interest
// rule and the withdrawal rules.
//
// Mutations are serialized by a single lock, but the lock is never held
// across an external transfer. Bookkeeping is written to the position store
// and published before the transfer is issued; a failed transfer reverts
// the change and writes a compensating record. Reads never take the lock:
// they are served from the book most recently published.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// book is an immutable view of the arena and the owner index. Writers
// build a new book and publish it; they never modify one in place.
type book struct {
	positions []domain.Position
	byOwner   map[common.Address][]uint64
}

func (b *book) lookup(id uint64) (domain.Position, bool) {
	if id >= uint64(len(b.positions)) {
		return domain.Position{}, false
	}
	return b.positions[id], true
}

// withPosition returns a book with p replacing the record at p.ID.
func (b *book) withPosition(p domain.Position) *book {
	positions := slices.Clone(b.positions)
	positions[p.ID] = p
	return &book{positions: positions, byOwner: b.byOwner}
}

// withAppended returns a book with p appended as the next id. Older books
// keep their shorter length, so sharing the backing array is safe as long
// as truncation clips it (see withoutLast).
func (b *book) withAppended(p domain.Position) *book {
	byOwner := maps.Clone(b.byOwner)
	byOwner[p.Owner] = append(slices.Clip(byOwner[p.Owner]), p.ID)
	return &book{positions: append(b.positions, p), byOwner: byOwner}
}

// withoutLast drops the newest position.
func (b *book) withoutLast() *book {
	n := len(b.positions) - 1
	last := b.positions[n]

	byOwner := maps.Clone(b.byOwner)
	ids := byOwner[last.Owner]
	if len(ids) <= 1 {
		delete(byOwner, last.Owner)
	} else {
		byOwner[last.Owner] = slices.Clip(ids[:len(ids)-1])
	}
	return &book{positions: slices.Clip(b.positions[:n]), byOwner: byOwner}
}

// Ledger owns the position arena (dense, indexed by id) and the owner
// index. Positions are never removed once another id has been issued
// after them; closing flips Open to false.
type Ledger struct {
	registry *Registry
	vault    domain.Transfer
	store    domain.PositionStore
	clock    domain.Clock
	logger   *slog.Logger

	mu   sync.Mutex // serializes writers
	view atomic.Pointer[book]
}

// New creates an empty Ledger. Call Restore before serving when the store
// may already hold positions.
func New(
	registry *Registry,
	vault domain.Transfer,
	store domain.PositionStore,
	clock domain.Clock,
	logger *slog.Logger,
) *Ledger {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	l := &Ledger{
		registry: registry,
		vault:    vault,
		store:    store,
		clock:    clock,
		logger:   logger.With(slog.String("component", "ledger")),
	}
	l.view.Store(&book{byOwner: make(map[common.Address][]uint64)})
	return l
}

// Registry returns the tier registry the ledger resolves rates from.
func (l *Ledger) Registry() *Registry {
	return l.registry
}

// Owner returns the operator identity.
func (l *Ledger) Owner() common.Address {
	return l.registry.Operator()
}

// Restore rebuilds the registry, the arena and the owner index from the
// stores. Position ids must be dense starting at zero.
func (l *Ledger) Restore(ctx context.Context) error {
	if err := l.registry.restore(ctx); err != nil {
		return err
	}

	stored, err := l.store.List(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load positions: %w", err)
	}

	arena := make([]domain.Position, 0, len(stored))
	index := make(map[common.Address][]uint64)
	for i, p := range stored {
		if p.ID != uint64(i) {
			return fmt.Errorf("ledger: restore: expected position %d, found %d", i, p.ID)
		}
		arena = append(arena, p.Clone())
		index[p.Owner] = append(index[p.Owner], p.ID)
	}

	l.mu.Lock()
	l.view.Store(&book{positions: arena, byOwner: index})
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "ledger restored",
		slog.Int("positions", len(arena)),
		slog.Int("owners", len(index)),
		slog.Int("tiers", len(l.registry.LockPeriods())),
	)
	return nil
}

// Stake opens a position for owner locking amount for days. The rate is
// captured from the registry now and never changes afterwards. On success
// amount has been moved from owner into custody.
//
// The position is visible to readers while TransferIn runs. If the
// transfer fails the position is removed again, unless a later stake has
// already taken the next id or the store refuses the delete; then the slot
// stays reserved as a void record (closed, zero amounts).
func (l *Ledger) Stake(ctx context.Context, owner common.Address, days uint32, amount *uint256.Int) (uint64, error) {
	if inTransfer(ctx) {
		return 0, domain.ErrReentrantCall
	}
	if amount == nil || amount.IsZero() {
		return 0, domain.ErrInvalidAmount
	}

	pos, err := l.open(ctx, owner, days, amount)
	if err != nil {
		return 0, err
	}

	if err := l.vault.TransferIn(withinTransfer(ctx), owner, amount); err != nil {
		transferErr := fmt.Errorf("ledger: transfer in for position %d: %w", pos.ID, err)
		if cerr := l.cancelStake(context.WithoutCancel(ctx), pos); cerr != nil {
			return 0, errors.Join(transferErr, cerr)
		}
		return 0, transferErr
	}

	l.logger.DebugContext(ctx, "position opened",
		slog.Uint64("position_id", pos.ID),
		slog.String("owner", owner.Hex()),
		slog.Uint64("lock_days", uint64(days)),
		slog.Uint64("rate_bps", pos.Rate),
		slog.String("principal", amount.Dec()),
	)
	return pos.ID, nil
}

// open reserves the next id, persists the position and publishes it.
func (l *Ledger) open(ctx context.Context, owner common.Address, days uint32, amount *uint256.Int) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rate, err := l.registry.LookupRate(days)
	if err != nil {
		return domain.Position{}, err
	}
	interest, err := Interest(rate, amount)
	if err != nil {
		return domain.Position{}, err
	}

	cur := l.view.Load()
	now := l.now()
	pos := domain.Position{
		ID:        uint64(len(cur.positions)),
		Owner:     owner,
		CreatedAt: now,
		UnlockAt:  UnlockAt(now, days),
		LockDays:  days,
		Rate:      rate,
		Principal: amount.Clone(),
		Interest:  interest,
		Open:      true,
	}

	if err := l.store.Insert(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("ledger: persist position %d: %w", pos.ID, err)
	}
	l.view.Store(cur.withAppended(pos))
	return pos, nil
}

// cancelStake undoes a position whose TransferIn failed.
func (l *Ledger) cancelStake(ctx context.Context, pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.view.Load()
	if pos.ID == uint64(len(cur.positions))-1 {
		derr := l.store.Delete(ctx, pos.ID)
		if derr == nil {
			l.view.Store(cur.withoutLast())
			return nil
		}
		l.logger.ErrorContext(ctx, "ledger: compensating delete failed",
			slog.Uint64("position_id", pos.ID),
			slog.String("error", derr.Error()),
		)
		l.view.Store(cur.withPosition(voided(pos, l.now())))
		return fmt.Errorf("ledger: compensate position %d: %w", pos.ID, derr)
	}

	void := voided(pos, l.now())
	l.view.Store(cur.withPosition(void))
	if uerr := l.store.Update(ctx, void); uerr != nil {
		l.logger.ErrorContext(ctx, "ledger: voiding position failed",
			slog.Uint64("position_id", pos.ID),
			slog.String("error", uerr.Error()),
		)
		return fmt.Errorf("ledger: void position %d: %w", pos.ID, uerr)
	}
	l.logger.WarnContext(ctx, "position voided after failed transfer",
		slog.Uint64("position_id", pos.ID),
	)
	return nil
}

// voided turns a position that never received its principal into a closed
// record that owes and paid nothing.
func voided(p domain.Position, now time.Time) domain.Position {
	v := p.Clone()
	v.Open = false
	v.ClosedAt = &now
	v.Principal = new(uint256.Int)
	v.Interest = new(uint256.Int)
	v.Payout = new(uint256.Int)
	return v
}

// Quote previews Stake without changing anything: the current rate for
// days, the interest amount would earn and the unlock time if staked now.
func (l *Ledger) Quote(days uint32, amount *uint256.Int) (domain.Quote, error) {
	if amount == nil || amount.IsZero() {
		return domain.Quote{}, domain.ErrInvalidAmount
	}
	rate, err := l.registry.LookupRate(days)
	if err != nil {
		return domain.Quote{}, err
	}
	interest, err := Interest(rate, amount)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		LockDays:  days,
		Rate:      rate,
		Principal: amount.Clone(),
		Interest:  interest,
		UnlockAt:  UnlockAt(l.now(), days),
	}, nil
}

// Position returns a copy of the position with the given id.
func (l *Ledger) Position(id uint64) (domain.Position, error) {
	p, ok := l.view.Load().lookup(id)
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %d", domain.ErrPositionNotFound, id)
	}
	return p.Clone(), nil
}

// PositionsForOwner returns the ids owner has staked, in creation order.
// An owner that never staked gets an empty, non-nil slice.
func (l *Ledger) PositionsForOwner(owner common.Address) []uint64 {
	ids := l.view.Load().byOwner[owner]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// ChangeUnlockDate overwrites a position's unlock time. Operator only. The
// date is stored in UTC truncated to whole seconds; otherwise it is
// accepted as given, closed positions included, unless strict terms are
// enabled on the registry.
func (l *Ledger) ChangeUnlockDate(ctx context.Context, caller common.Address, id uint64, unlockAt time.Time) error {
	if inTransfer(ctx) {
		return domain.ErrReentrantCall
	}
	if !l.registry.IsOperator(caller) {
		return domain.ErrNotAuthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.view.Load()
	prev, ok := cur.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrPositionNotFound, id)
	}
	unlockAt = unlockAt.UTC().Truncate(time.Second)

	if l.registry.strict {
		if !prev.Open {
			return domain.ErrPositionAlreadyClosed
		}
		if unlockAt.Before(prev.CreatedAt) {
			return fmt.Errorf("%w: unlock %s precedes creation %s",
				domain.ErrInvalidTerms, unlockAt.Format(time.RFC3339), prev.CreatedAt.Format(time.RFC3339))
		}
	}

	next := prev.Clone()
	next.UnlockAt = unlockAt
	if err := l.store.Update(ctx, next); err != nil {
		return fmt.Errorf("ledger: persist unlock for position %d: %w", id, err)
	}
	l.view.Store(cur.withPosition(next))

	l.logger.DebugContext(ctx, "unlock date changed",
		slog.Uint64("position_id", id),
		slog.Time("from", prev.UnlockAt),
		slog.Time("to", unlockAt),
	)
	return nil
}

// ClosePosition closes a position on behalf of its owner and pays out.
// Ownership is checked first, so an unknown id or a foreign caller both
// yield domain.ErrNotPositionOwner; only the owner can learn that a
// position is already closed. Closing before the unlock time pays the
// principal alone and the interest stays in custody.
//
// The position is marked closed, persisted and published before
// TransferOut is called, and the lock is released for the transfer. A
// second close of the same position, from any context, sees it closed.
// When the transfer fails only the closing fields are rolled back, so an
// unlock date changed in the meantime survives.
func (l *Ledger) ClosePosition(ctx context.Context, caller common.Address, id uint64) (domain.Closure, error) {
	if inTransfer(ctx) {
		return domain.Closure{}, domain.ErrReentrantCall
	}

	closure, err := l.markClosed(ctx, caller, id)
	if err != nil {
		return domain.Closure{}, err
	}

	if err := l.vault.TransferOut(withinTransfer(ctx), caller, closure.Payout); err != nil {
		transferErr := fmt.Errorf("ledger: transfer out for position %d: %w", id, err)
		if rerr := l.reopen(context.WithoutCancel(ctx), id); rerr != nil {
			return domain.Closure{}, errors.Join(transferErr, rerr)
		}
		return domain.Closure{}, transferErr
	}

	l.logger.DebugContext(ctx, "position closed",
		slog.Uint64("position_id", id),
		slog.Bool("early", closure.Early),
		slog.String("payout", closure.Payout.Dec()),
		slog.String("forfeited", closure.Forfeited.Dec()),
	)
	return closure, nil
}

func (l *Ledger) markClosed(ctx context.Context, caller common.Address, id uint64) (domain.Closure, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.view.Load()
	prev, ok := cur.lookup(id)
	if caller == (common.Address{}) || !ok || prev.Owner != caller {
		return domain.Closure{}, domain.ErrNotPositionOwner
	}
	if !prev.Open {
		return domain.Closure{}, domain.ErrPositionAlreadyClosed
	}

	now := l.now()
	payout, forfeited, early, err := Payout(prev, now)
	if err != nil {
		return domain.Closure{}, err
	}

	closed := prev.Clone()
	closed.Open = false
	closed.ClosedAt = &now
	closed.Payout = payout.Clone()
	if err := l.store.Update(ctx, closed); err != nil {
		return domain.Closure{}, fmt.Errorf("ledger: persist close of position %d: %w", id, err)
	}
	l.view.Store(cur.withPosition(closed))

	return domain.Closure{
		PositionID: id,
		Owner:      caller,
		Payout:     payout,
		Forfeited:  forfeited,
		Early:      early,
		ClosedAt:   now,
	}, nil
}

// reopen rolls back Open, ClosedAt and Payout on the current record.
func (l *Ledger) reopen(ctx context.Context, id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.view.Load()
	p, _ := cur.lookup(id)
	p = p.Clone()
	p.Open = true
	p.ClosedAt = nil
	p.Payout = nil
	l.view.Store(cur.withPosition(p))

	if err := l.store.Update(ctx, p); err != nil {
		l.logger.ErrorContext(ctx, "ledger: compensating reopen failed",
			slog.Uint64("position_id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ledger: reopen position %d: %w", id, err)
	}
	return nil
}

// Summary totals the book. Interest owed counts open positions only.
func (l *Ledger) Summary() domain.Summary {
	positions := l.view.Load().positions

	s := domain.Summary{
		Positions:     uint64(len(positions)),
		LockedTotal:   new(uint256.Int),
		InterestOwed:  new(uint256.Int),
		ClosedPayouts: new(uint256.Int),
	}
	for _, p := range positions {
		if p.Open {
			s.OpenPositions++
			s.LockedTotal.Add(s.LockedTotal, p.Principal)
			s.InterestOwed.Add(s.InterestOwed, p.Interest)
			continue
		}
		if p.Payout != nil {
			s.ClosedPayouts.Add(s.ClosedPayouts, p.Payout)
		}
	}
	return s
}

// Snapshot returns a consistent copy of every tier and position.
func (l *Ledger) Snapshot() ([]domain.Tier, []domain.Position) {
	current := l.view.Load().positions

	positions := make([]domain.Position, len(current))
	for i, p := range current {
		positions[i] = p.Clone()
	}
	return l.registry.Tiers(), positions
}

// Custody returns the balance currently held by the transfer primitive.
func (l *Ledger) Custody(ctx context.Context) (*uint256.Int, error) {
	return l.vault.Custody(ctx)
}

func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC().Truncate(time.Second)
}
