package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/biomed-platform-security/internal/core/port"
	"github.com/arklim/biomed-platform-security/internal/infra/logger"
)

// LoggingVerificationSender logs verification deliveries instead of sending
// mail. Deployments wire a real mailer behind port.VerificationSender; the
// raw token is only logged in development.
type LoggingVerificationSender struct {
	logger *zap.Logger
	isDev  bool
}

// NewLoggingVerificationSender constructs the logging sender.
func NewLoggingVerificationSender(log *zap.Logger, isDev bool) *LoggingVerificationSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingVerificationSender{logger: log, isDev: isDev}
}

// SendVerification logs the delivery.
func (s *LoggingVerificationSender) SendVerification(_ context.Context, email, token string) error {
	fields := []zap.Field{
		zap.String("email", logger.MaskEmail(email)),
	}
	if s.isDev {
		fields = append(fields, zap.String("token", token))
	}
	s.logger.Info("verification token issued", fields...)
	return nil
}

var _ port.VerificationSender = (*LoggingVerificationSender)(nil)
