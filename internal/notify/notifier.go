// Package notify forwards ledger events to chat channels (Telegram,
// Discord), filtered by event kind.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a notification out to every sender. Delivery to one sender
// never depends on another succeeding.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. When events is empty every kind passes.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// NotifyEvent renders evt and delivers it if its kind passes the filter.
func (n *Notifier) NotifyEvent(ctx context.Context, evt domain.LedgerEvent) error {
	if len(n.events) > 0 && !n.events[string(evt.Kind)] {
		return nil
	}
	title, message := FormatEvent(evt)
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers regardless of the filter (startup, shutdown, failures).
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// FormatEvent renders a ledger event as a short title and body.
func FormatEvent(evt domain.LedgerEvent) (title, message string) {
	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}

	switch evt.Kind {
	case domain.EventPositionOpened:
		title = "Position opened"
	case domain.EventPositionClosed:
		title = "Position closed"
	case domain.EventEarlyWithdrawal:
		title = "Early withdrawal"
	case domain.EventTierSet:
		title = "Tier updated"
	case domain.EventUnlockChanged:
		title = "Unlock date changed"
	default:
		title = string(evt.Kind)
	}

	if evt.PositionID != nil {
		line("position", fmt.Sprint(*evt.PositionID))
	}
	line("address", evt.Address)
	if evt.LockDays > 0 {
		line("lock", fmt.Sprintf("%d days", evt.LockDays))
	}
	if evt.Rate != nil {
		line("rate", fmt.Sprintf("%d bps", *evt.Rate))
	}
	line("amount", evt.Amount)
	line("interest", evt.Interest)
	if evt.UnlockAt != nil {
		line("unlock", evt.UnlockAt.UTC().Format(time.RFC3339))
	}
	return title, strings.TrimRight(b.String(), "\n")
}
