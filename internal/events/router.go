package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// HandlerFunc processes one decoded event payload
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) error

// Router dispatches inbound messages to handlers by exact routing-key match.
// It owns payload decoding; retry policy belongs to the consumer's ack layer.
type Router struct {
	routes map[string]HandlerFunc
	log    *zap.Logger
}

// NewRouter builds the static dispatch table over the order handlers
func NewRouter(handlers *OrderHandlers, log *zap.Logger) *Router {
	return &Router{
		routes: map[string]HandlerFunc{
			EventOrderCreated:       handlers.HandleOrderCreated,
			EventOrderReadyForStock: handlers.HandleOrderReadyForStock,
			EventOrderItemsDelta:    handlers.HandleOrderItemsDelta,
			EventOrderCancelled:     handlers.HandleOrderCancelled,
			EventOrderRejected:      handlers.HandleOrderRejected,
			EventOrderDeleted:       handlers.HandleOrderDeleted,
			EventOrderUpdated:       handlers.HandleOrderUpdated,
			EventOrderRequestPrice:  handlers.HandleOrderRequestPrice,
		},
		log: log,
	}
}

// Route decodes the message body and invokes the matching handler.
//
// Unmatched routing keys are logged and dropped, never retried. A body that
// fails to decode is not dropped: the handler is invoked with a sentinel
// {"raw": body} payload so malformed input stays observable. Handler errors
// are logged here and returned so the consumer can apply its nack policy.
func (r *Router) Route(ctx context.Context, routingKey string, body []byte) error {
	handler, ok := r.routes[routingKey]
	if !ok {
		r.log.Warn("No handler for routing key, message dropped",
			zap.String("routing_key", routingKey),
		)
		return nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		r.log.Warn("Malformed event body",
			zap.String("routing_key", routingKey),
			zap.Int("size", len(body)),
		)
		payload = map[string]interface{}{"raw": body}
	}

	if err := handler(ctx, payload); err != nil {
		r.log.Error("Handler failed",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}
	return nil
}
