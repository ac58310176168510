// Package service wraps the ledger with the side channels a running
// deployment needs: the event bus, the audit log, chat notifications and
// metrics.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/ledger"
)

const (
	// ChannelLedger carries live ledger events over Pub/Sub.
	ChannelLedger = "ledger"
	// StreamLedgerEvents keeps a replayable history of ledger events.
	StreamLedgerEvents = "ledger:events"

	notifyTimeout = 10 * time.Second
)

// EventNotifier delivers ledger events to humans. *notify.Notifier
// satisfies it.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, evt domain.LedgerEvent) error
}

// OpObserver counts ledger operations. *metrics.Metrics satisfies it.
type OpObserver interface {
	ObserveLedgerOp(op, outcome string)
}

// StakingService is the application's entry point into the ledger. Every
// successful mutation is published, audited and notified; failures of
// those side channels are logged and never undo the ledger operation.
type StakingService struct {
	ledger   *ledger.Ledger
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
	metrics  OpObserver
	clock    domain.Clock
	logger   *slog.Logger
}

// Option configures optional StakingService collaborators.
type Option func(*StakingService)

// WithNotifier forwards events to n.
func WithNotifier(n EventNotifier) Option {
	return func(s *StakingService) { s.notifier = n }
}

// WithMetrics counts operations in m.
func WithMetrics(m OpObserver) Option {
	return func(s *StakingService) { s.metrics = m }
}

// WithClock overrides the clock used to stamp events.
func WithClock(c domain.Clock) Option {
	return func(s *StakingService) { s.clock = c }
}

// NewStakingService creates a StakingService.
func NewStakingService(
	l *ledger.Ledger,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	opts ...Option,
) *StakingService {
	s := &StakingService{
		ledger: l,
		bus:    bus,
		audit:  audit,
		clock:  domain.SystemClock{},
		logger: logger.With(slog.String("component", "staking_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger returns the wrapped ledger for read-only callers.
func (s *StakingService) Ledger() *ledger.Ledger {
	return s.ledger
}

// Stake opens a position and announces it.
func (s *StakingService) Stake(ctx context.Context, owner common.Address, days uint32, amount *uint256.Int) (domain.Position, error) {
	id, err := s.ledger.Stake(ctx, owner, days, amount)
	s.observe("stake", err)
	if err != nil {
		return domain.Position{}, err
	}

	pos, err := s.ledger.Position(id)
	if err != nil {
		return domain.Position{}, err
	}

	s.emit(ctx, domain.LedgerEvent{
		Kind:       domain.EventPositionOpened,
		PositionID: &pos.ID,
		Address:    owner.Hex(),
		LockDays:   pos.LockDays,
		Rate:       &pos.Rate,
		Amount:     pos.Principal.Dec(),
		Interest:   pos.Interest.Dec(),
		UnlockAt:   &pos.UnlockAt,
	})
	return pos, nil
}

// ClosePosition closes a position for its owner and announces the payout.
// An early close is announced as an early withdrawal.
func (s *StakingService) ClosePosition(ctx context.Context, caller common.Address, id uint64) (domain.Closure, error) {
	closure, err := s.ledger.ClosePosition(ctx, caller, id)
	s.observe("close", err)
	if err != nil {
		return domain.Closure{}, err
	}

	kind := domain.EventPositionClosed
	if closure.Early {
		kind = domain.EventEarlyWithdrawal
	}
	evt := domain.LedgerEvent{
		Kind:       kind,
		PositionID: &closure.PositionID,
		Address:    caller.Hex(),
		Amount:     closure.Payout.Dec(),
	}
	if closure.Early {
		evt.Interest = closure.Forfeited.Dec()
	}
	s.emit(ctx, evt)
	return closure, nil
}

// ChangeUnlockDate overwrites a position's unlock time on the operator's
// behalf.
func (s *StakingService) ChangeUnlockDate(ctx context.Context, caller common.Address, id uint64, unlockAt time.Time) error {
	err := s.ledger.ChangeUnlockDate(ctx, caller, id, unlockAt)
	s.observe("change_unlock", err)
	if err != nil {
		return err
	}

	at := unlockAt.UTC().Truncate(time.Second)
	s.emit(ctx, domain.LedgerEvent{
		Kind:       domain.EventUnlockChanged,
		PositionID: &id,
		Address:    caller.Hex(),
		UnlockAt:   &at,
	})
	return nil
}

// SetTier creates or overwrites a tier on the operator's behalf.
func (s *StakingService) SetTier(ctx context.Context, caller common.Address, days uint32, rate uint64) error {
	err := s.ledger.Registry().SetTier(ctx, caller, days, rate)
	s.observe("set_tier", err)
	if err != nil {
		return err
	}

	s.emit(ctx, domain.LedgerEvent{
		Kind:     domain.EventTierSet,
		Address:  caller.Hex(),
		LockDays: days,
		Rate:     &rate,
	})
	return nil
}

// Position returns one position.
func (s *StakingService) Position(id uint64) (domain.Position, error) {
	return s.ledger.Position(id)
}

// PositionsForOwner returns the ids owner has staked.
func (s *StakingService) PositionsForOwner(owner common.Address) []uint64 {
	return s.ledger.PositionsForOwner(owner)
}

// Tiers lists the registry in registration order.
func (s *StakingService) Tiers() []domain.Tier {
	return s.ledger.Registry().Tiers()
}

// LookupRate returns the current rate for days.
func (s *StakingService) LookupRate(days uint32) (uint64, error) {
	return s.ledger.Registry().LookupRate(days)
}

// Quote previews a stake.
func (s *StakingService) Quote(days uint32, amount *uint256.Int) (domain.Quote, error) {
	return s.ledger.Quote(days, amount)
}

// Summary totals the book.
func (s *StakingService) Summary() domain.Summary {
	return s.ledger.Summary()
}

// Custody returns the balance held by the transfer primitive.
func (s *StakingService) Custody(ctx context.Context) (*uint256.Int, error) {
	return s.ledger.Custody(ctx)
}

// Owner returns the operator identity.
func (s *StakingService) Owner() common.Address {
	return s.ledger.Owner()
}

// IsOperator reports whether addr holds the operator role.
func (s *StakingService) IsOperator(addr common.Address) bool {
	return s.ledger.Registry().IsOperator(addr)
}

// Events replays up to count stored events after lastID.
func (s *StakingService) Events(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	return s.bus.StreamRead(ctx, StreamLedgerEvents, lastID, count)
}

func (s *StakingService) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveLedgerOp(op, domain.ErrorCode(err))
	}
}

// emit publishes, appends, audits and notifies evt.
func (s *StakingService) emit(ctx context.Context, evt domain.LedgerEvent) {
	evt.At = s.clock.Now().UTC()
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(slog.String("event", string(evt.Kind)))

	payload, err := json.Marshal(evt)
	if err != nil {
		log.ErrorContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}

	if err := s.bus.Publish(ctx, ChannelLedger, payload); err != nil {
		log.WarnContext(ctx, "publish event failed", slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, StreamLedgerEvents, payload); err != nil {
		log.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
	}

	detail := make(map[string]any)
	if err := json.Unmarshal(payload, &detail); err == nil {
		delete(detail, "event")
		if err := s.audit.Log(ctx, string(evt.Kind), detail); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	log.InfoContext(ctx, "ledger event", slog.String("payload", string(payload)))

	if s.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
			defer cancel()
			if err := s.notifier.NotifyEvent(nctx, evt); err != nil {
				log.WarnContext(nctx, "notify failed", slog.String("error", err.Error()))
			}
		}()
	}
}
