// Package notify delivers user-facing messages about snipe outcomes.
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Sink pushes a message to a user. Delivery is best effort: implementations log
// failures and never return them to the caller.
type Sink interface {
	Notify(ctx context.Context, userID int64, message string)
}

// FailureMessage is sent when an order could not be executed.
func FailureMessage(token string) string {
	return fmt.Sprintf("Snipe failed for %s: transaction could not be executed", token)
}

// LogSink writes notifications to a logger.
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink creates a sink that logs every notification at info level.
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{log: logger.WithField("component", "notify")}
}

// Notify logs message.
func (s *LogSink) Notify(_ context.Context, userID int64, message string) {
	s.log.WithField("user_id", userID).Info(message)
}

// Multi fans a notification out to every sink.
type Multi []Sink

// Notify calls every sink in order.
func (m Multi) Notify(ctx context.Context, userID int64, message string) {
	for _, s := range m {
		s.Notify(ctx, userID, message)
	}
}
