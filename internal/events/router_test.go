package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llNABSll/product-api/internal/repo"
)

func newTestRouter(f *handlerFixture) *Router {
	return NewRouter(f.handlers, zap.NewNop())
}

func TestRouteUnknownKeyIsDropped(t *testing.T) {
	f := setupHandlers(t)
	router := newTestRouter(f)

	err := router.Route(context.Background(), "payment.settled", []byte(`{"order_id": 1}`))
	assert.NoError(t, err, "unknown routing keys must be dropped, not retried")
	assert.Empty(t, f.mq.events)
}

func TestRouteDispatchesByKey(t *testing.T) {
	f := setupHandlers(t)
	router := newTestRouter(f)
	ctx := context.Background()

	p := f.mustCreate(t, "RTR-001", 10, 3)
	f.mq.events = nil

	body := []byte(fmt.Sprintf(`{"order_id": 1, "items": [{"product_id": %d, "quantity": 4}]}`, p.ID))
	err := router.Route(ctx, EventOrderCreated, body)
	assert.NoError(t, err)
	assert.Equal(t, 6, f.quantity(t, p.ID))
	assert.Len(t, f.mq.byKey(EventOrderConfirmed), 1)
}

func TestRouteMalformedBodyUsesSentinel(t *testing.T) {
	f := setupHandlers(t)
	router := newTestRouter(f)

	// The handler receives the {"raw": body} sentinel, finds no items and
	// makes no store write or publish.
	err := router.Route(context.Background(), EventOrderCreated, []byte(`{not json`))
	assert.NoError(t, err)
	assert.Empty(t, f.mq.events)
}

func TestRouteNullBodyUsesSentinel(t *testing.T) {
	f := setupHandlers(t)
	router := newTestRouter(f)

	err := router.Route(context.Background(), EventOrderUpdated, []byte(`null`))
	assert.NoError(t, err)
	assert.Empty(t, f.mq.events)
}

func TestRoutePropagatesHandlerError(t *testing.T) {
	f := setupHandlers(t)
	router := newTestRouter(f)

	// Restoring stock for an unknown product is a hard failure the consumer
	// must see to apply its nack policy.
	body := []byte(`{"order_id": 2, "items": [{"product_id": 31337, "quantity": 1}]}`)
	err := router.Route(context.Background(), EventOrderCancelled, body)
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrProductNotFound)
}
