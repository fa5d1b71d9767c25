package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/outreach-agent/internal/config"
)

const sendTimeout = 30 * time.Second

// FailureCounter is told about every failed delivery.
type FailureCounter interface {
	NotificationFailed(sink string)
}

// Dispatcher fans a summary out to every configured sink. Delivery failures
// are logged and counted; they never reach the caller.
type Dispatcher struct {
	sinks    []Sink
	failures FailureCounter
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. failures may be nil.
func NewDispatcher(logger *slog.Logger, failures FailureCounter, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, failures: failures, logger: logger}
}

// FromConfig builds the sinks enabled by cfg and warns about the rest.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger, failures FailureCounter) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Sink
	if cfg.TelegramEnabled() {
		sinks = append(sinks, NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	} else {
		logger.Warn("Telegram not configured, notifications disabled for this sink")
	}
	if cfg.EmailEnabled() {
		sinks = append(sinks, NewEmail(cfg.SMTPAddr, cfg.EmailSender, cfg.EmailPassword, cfg.EmailReceiver))
	} else {
		logger.Warn("Email not configured, notifications disabled for this sink")
	}
	return NewDispatcher(logger, failures, sinks...)
}

// Sinks returns the names of the active sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch sends s to every sink in order.
func (d *Dispatcher) Dispatch(ctx context.Context, s Summary) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sink.Send(sendCtx, s)
		cancel()

		if err != nil {
			d.logger.Error("Notification failed", "sink", sink.Name(), "task", s.Task, "run_id", s.RunID, "error", err)
			if d.failures != nil {
				d.failures.NotificationFailed(sink.Name())
			}
			continue
		}
		d.logger.Info("Notification sent", "sink", sink.Name(), "task", s.Task, "run_id", s.RunID)
	}
}
