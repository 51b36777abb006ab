package events

// Routing keys for the order-lifecycle events this service consumes.
const (
	EventOrderCreated       = "order.created"
	EventOrderItemsDelta    = "order.items_delta"
	EventOrderCancelled     = "order.cancelled"
	EventOrderRejected      = "order.rejected"
	EventOrderDeleted       = "order.deleted"
	EventOrderUpdated       = "order.updated"
	EventOrderRequestPrice  = "order.request_price"
	EventOrderReadyForStock = "order.ready_for_stock"
)

// Routing keys for the follow-up events the handlers publish.
const (
	EventOrderConfirmed       = "order.confirmed"
	EventOrderPriceCalculated = "order.price_calculated"
)

// DefaultBindingPatterns are the topic patterns the consumer queue binds to.
var DefaultBindingPatterns = []string{"order.#", "customer.#"}

// OrderItem is one reservation line of an order event
type OrderItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// OrderDelta is one signed stock adjustment of an order.items_delta event.
// A positive delta reserves additional stock, a negative delta returns it.
type OrderDelta struct {
	ProductID uint `json:"product_id"`
	Delta     int  `json:"delta"`
}
