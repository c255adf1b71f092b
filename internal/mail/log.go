package mail

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the logger instead of delivering them. It is the development
// transport and always succeeds.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email not delivered (log transport)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTMLBody)),
	)
	return nil
}
