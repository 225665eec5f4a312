package messaging

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sirupsen/logrus"
)

func correlationIDMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := middleware.MessageCorrelationID(msg)
		if correlationID == "" {
			correlationID = NewCorrelationID()
		}

		msg.SetContext(ContextWithCorrelationID(msg.Context(), correlationID))
		return next(msg)
	}
}

func handlerLogMiddleware(logger *logrus.Logger) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			entry := logger.WithFields(logrus.Fields{
				"message_uuid":   msg.UUID,
				"correlation_id": CorrelationIDFromContext(msg.Context()),
				"handler":        message.HandlerNameFromCtx(msg.Context()),
			})
			entry.Debug("Handling a message")

			msgs, err := next(msg)
			if err != nil {
				entry.WithError(err).Error("Message handling error")
			}
			return msgs, err
		}
	}
}
