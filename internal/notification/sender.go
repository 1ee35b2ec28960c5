// Package notification defines the outbound-mail side effect contract hooks
// depend on. The engine only emits "send this templated message to these
// addresses"; actual delivery lives behind the Sender interface.
package notification

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a templated message to a set of addresses.
type Sender interface {
	Send(ctx context.Context, addresses []string, templateRef string, data map[string]any) error
}

// LogSender records outbound messages in the structured log instead of
// delivering them. Used in development and as the default wiring.
type LogSender struct {
	from   string
	logger *zap.Logger
}

// NewLogSender constructs the logging sender.
func NewLogSender(from string, logger *zap.Logger) *LogSender {
	return &LogSender{from: from, logger: logger}
}

// Send logs the message envelope.
func (s *LogSender) Send(_ context.Context, addresses []string, templateRef string, data map[string]any) error {
	s.logger.Info("sendmail",
		zap.String("from", s.from),
		zap.Strings("to", addresses),
		zap.String("template", templateRef),
		zap.Any("data", data))
	return nil
}
