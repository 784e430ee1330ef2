// Package mail delivers outbound messages.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LogMailer writes each message to the structured log instead of sending
// it. It stands in for an SMTP or API relay in development.
type LogMailer struct {
	logger *slog.Logger
	from   string
}

func NewLogMailer(logger *slog.Logger, from string) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With("component", "mail"), from: from}
}

func (m *LogMailer) Send(ctx context.Context, to string, subject string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to = strings.TrimSpace(to)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}

	m.logger.InfoContext(ctx, "mail queued",
		"from", m.from,
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
