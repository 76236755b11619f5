// Package notify carries the mail collaborator boundary. The real provider
// lives outside this core; Logger is the default implementation, which only
// records the would-be sends. Every caller treats failures as log-and-continue.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"resort_booking/internal/domain"
)

type Logger struct{ l zerolog.Logger }

func NewLogger(l zerolog.Logger) *Logger { return &Logger{l: l} }

var _ domain.Notifier = (*Logger)(nil)

func (n *Logger) BookingConfirmed(ctx context.Context, b domain.Booking) error {
	n.l.Info().
		Str("booking", b.ID).
		Str("email", b.Guest.Contact().Email).
		Float64("total", b.Price.TotalPayable).
		Msg("booking confirmation notification")
	return nil
}

func (n *Logger) BookingCancelled(ctx context.Context, b domain.Booking) error {
	n.l.Info().
		Str("booking", b.ID).
		Str("email", b.Guest.Contact().Email).
		Msg("booking cancellation notification")
	return nil
}

func (n *Logger) CommissionEarned(ctx context.Context, email string, amount float64, bookingID string) error {
	n.l.Info().
		Str("email", email).
		Float64("amount", amount).
		Str("booking", bookingID).
		Msg("commission earned notification")
	return nil
}
