// Package mail provides the outbound mail collaborator. Actual delivery is
// an external concern; the default sender only records the attempt.
package mail

import (
	"context"

	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/pkg/logger"
)

// LogSender records outbound mail without delivering it. Useful as the
// default wiring and in tests.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender builds a sender that logs every message.
func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.NewDefault("mail")
	}
	return &LogSender{log: log}
}

// Send implements domain.MailSender.
func (s *LogSender) Send(ctx context.Context, m domain.Mail) error {
	s.log.WithFields(map[string]interface{}{
		"to":      m.To,
		"subject": m.Subject,
	}).Info("mail recorded")
	return nil
}

var _ domain.MailSender = (*LogSender)(nil)
