// Package notify raises desktop notifications for failures the operator
// must not miss.
package notify

import (
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

const (
	DefaultTitle    = "Niblit"
	DefaultInterval = time.Minute
)

// SendFunc delivers one notification.
type SendFunc func(title, message string) error

func beeepSend(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Notifier sends desktop notifications, at most one per interval.
type Notifier struct {
	send     SendFunc
	disabled bool
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	lastSent time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSendFunc replaces the desktop backend.
func WithSendFunc(f SendFunc) Option {
	return func(n *Notifier) { n.send = f }
}

// WithDisabled turns every notification into a log line only.
func WithDisabled(disabled bool) Option {
	return func(n *Notifier) { n.disabled = disabled }
}

// WithInterval sets the minimum gap between notifications.
func WithInterval(d time.Duration) Option {
	return func(n *Notifier) { n.interval = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New returns a Notifier backed by beeep.
func New(logger zerolog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		send:     beeepSend,
		interval: DefaultInterval,
		now:      time.Now,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends message. It reports whether a notification was delivered.
// Delivery failures are logged, never returned.
func (n *Notifier) Notify(title, message string) bool {
	if n == nil || n.disabled {
		return false
	}
	if title == "" {
		title = DefaultTitle
	}

	n.mu.Lock()
	now := n.now()
	if !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.interval {
		n.mu.Unlock()
		n.logger.Debug().Str("message", message).Msg("Notification suppressed")
		return false
	}
	n.lastSent = now
	n.mu.Unlock()

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send desktop notification")
		return false
	}
	n.logger.Info().Str("title", title).Msg("Desktop notification sent")
	return true
}

// WriteFailure alerts the operator that the knowledge store could not be saved.
func (n *Notifier) WriteFailure(err error) bool {
	if err == nil {
		return false
	}
	return n.Notify(DefaultTitle+": memory not saved", err.Error())
}
