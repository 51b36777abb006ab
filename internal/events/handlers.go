package events

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/llNABSll/product-api/internal/repo"
	"github.com/llNABSll/product-api/internal/service"
	"github.com/llNABSll/product-api/internal/stock"
)

// OrderHandlers reacts to the order lifecycle observed on the bus to keep
// product quantities consistent. This service never owns order state: it
// reserves stock on creation, releases it on cancellation or deletion and
// answers price requests from the current catalog.
type OrderHandlers struct {
	svc *service.ProductService
	mq  service.Publisher
	log *zap.Logger
}

// NewOrderHandlers creates the order event handlers
func NewOrderHandlers(svc *service.ProductService, mq service.Publisher, log *zap.Logger) *OrderHandlers {
	return &OrderHandlers{
		svc: svc,
		mq:  mq,
		log: log,
	}
}

// --- payload cleaning ---

// asInt coerces a decoded JSON value to an int. Numbers arrive as float64
// from encoding/json; fractional values are not integers and are refused.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// orderID extracts the identifying order id, tolerating both the order_id
// and id field names seen on the bus.
func orderID(payload map[string]interface{}) interface{} {
	if v, ok := payload["order_id"]; ok {
		return v
	}
	return payload["id"]
}

// cleanItems extracts well-formed {product_id, quantity} entries from the
// payload. Malformed entries (non-integer ids, negative quantities) are
// dropped with a warning, never fatal.
func (h *OrderHandlers) cleanItems(payload map[string]interface{}) []OrderItem {
	raw, ok := payload["items"].([]interface{})
	if !ok {
		return nil
	}

	items := make([]OrderItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			h.log.Warn("dropping malformed order item", zap.Any("entry", entry))
			continue
		}
		pid, okID := asInt(m["product_id"])
		qty, okQty := asInt(m["quantity"])
		if !okID || !okQty || pid <= 0 || qty < 0 {
			h.log.Warn("dropping malformed order item", zap.Any("entry", entry))
			continue
		}
		items = append(items, OrderItem{ProductID: uint(pid), Quantity: qty})
	}
	return items
}

// cleanDeltas extracts well-formed {product_id, delta} entries. Zero deltas
// are no-ops and dropped along with malformed entries, with a warning.
func (h *OrderHandlers) cleanDeltas(payload map[string]interface{}) []OrderDelta {
	raw, ok := payload["deltas"].([]interface{})
	if !ok {
		return nil
	}

	deltas := make([]OrderDelta, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			h.log.Warn("dropping malformed order delta", zap.Any("entry", entry))
			continue
		}
		pid, okID := asInt(m["product_id"])
		d, okDelta := asInt(m["delta"])
		if !okID || !okDelta || pid <= 0 || d == 0 {
			h.log.Warn("dropping malformed or zero order delta", zap.Any("entry", entry))
			continue
		}
		deltas = append(deltas, OrderDelta{ProductID: uint(pid), Delta: d})
	}
	return deltas
}

// reject publishes a single order.rejected event carrying the reason and
// the full cleaned item/delta list of the failed reservation.
func (h *OrderHandlers) reject(ctx context.Context, oid interface{}, reason string, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"order_id": oid,
		"reason":   reason,
	}
	for k, v := range extra {
		payload[k] = v
	}

	h.log.Warn("order reservation rejected", zap.Any("order_id", oid), zap.String("reason", reason))
	if err := h.mq.Publish(ctx, EventOrderRejected, payload); err != nil {
		h.log.Error("failed to publish order.rejected", zap.Any("order_id", oid), zap.Error(err))
	}
}

// compensateItems undoes already-applied reservations after a mid-batch
// failure, best-effort.
func (h *OrderHandlers) compensateItems(ctx context.Context, applied []OrderItem) {
	for _, it := range applied {
		if _, err := h.svc.AdjustStock(ctx, it.ProductID, +it.Quantity); err != nil {
			h.log.Error("failed to compensate reservation",
				zap.Uint("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
}

// --- handlers ---

// HandleOrderCreated reserves stock for a new order
func (h *OrderHandlers) HandleOrderCreated(ctx context.Context, payload map[string]interface{}) error {
	return h.reserveStock(ctx, EventOrderCreated, payload)
}

// HandleOrderReadyForStock reserves stock for an order released to fulfilment
func (h *OrderHandlers) HandleOrderReadyForStock(ctx context.Context, payload map[string]interface{}) error {
	return h.reserveStock(ctx, EventOrderReadyForStock, payload)
}

// reserveStock implements the all-or-nothing reservation: every item's
// availability is checked before any quantity is touched, so a rejection
// leaves no item decremented. The check-then-write window is closed by the
// version-conditioned update; a conflicting writer in between surfaces as
// a rejection, and anything already applied is compensated.
func (h *OrderHandlers) reserveStock(ctx context.Context, event string, payload map[string]interface{}) error {
	oid := orderID(payload)
	items := h.cleanItems(payload)

	if len(items) == 0 {
		h.log.Info("order event without items, nothing to reserve",
			zap.String("event", event), zap.Any("order_id", oid))
		return nil
	}

	// Dry-run availability check across all items before any write
	for _, it := range items {
		p, err := h.svc.Get(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, repo.ErrProductNotFound) {
				h.reject(ctx, oid, fmt.Sprintf("product %d not found", it.ProductID),
					map[string]interface{}{"items": items})
				return nil
			}
			return err
		}
		if p.Quantity < it.Quantity {
			h.reject(ctx, oid,
				fmt.Sprintf("insufficient stock for product %d (requested %d, available %d)",
					it.ProductID, it.Quantity, p.Quantity),
				map[string]interface{}{"items": items})
			return nil
		}
	}

	for i, it := range items {
		if _, err := h.svc.AdjustStock(ctx, it.ProductID, -it.Quantity); err != nil {
			if errors.Is(err, stock.ErrInsufficientStock) ||
				errors.Is(err, repo.ErrVersionConflict) ||
				errors.Is(err, repo.ErrProductNotFound) {
				// A concurrent writer changed the product between check and
				// write; undo what was applied and reject the whole order.
				h.compensateItems(ctx, items[:i])
				h.reject(ctx, oid,
					fmt.Sprintf("reservation lost for product %d: %v", it.ProductID, err),
					map[string]interface{}{"items": items})
				return nil
			}
			h.compensateItems(ctx, items[:i])
			return err
		}
	}

	h.log.Info("stock reserved",
		zap.String("event", event),
		zap.Any("order_id", oid),
		zap.Int("items", len(items)),
	)
	if err := h.mq.Publish(ctx, EventOrderConfirmed, map[string]interface{}{
		"order_id": oid,
		"items":    items,
	}); err != nil {
		h.log.Error("failed to publish order.confirmed", zap.Any("order_id", oid), zap.Error(err))
	}
	return nil
}

// HandleOrderItemsDelta applies fine-grained adjustments after an order's
// items changed: a positive delta reserves more stock, a negative delta
// returns it. Additional reservations are pre-checked across all deltas
// before anything is applied.
func (h *OrderHandlers) HandleOrderItemsDelta(ctx context.Context, payload map[string]interface{}) error {
	oid := orderID(payload)
	deltas := h.cleanDeltas(payload)

	if len(deltas) == 0 {
		h.log.Info("order.items_delta without deltas, nothing to do", zap.Any("order_id", oid))
		return nil
	}

	for _, d := range deltas {
		if d.Delta <= 0 {
			continue
		}
		p, err := h.svc.Get(ctx, d.ProductID)
		if err != nil {
			if errors.Is(err, repo.ErrProductNotFound) {
				h.reject(ctx, oid, fmt.Sprintf("product %d not found", d.ProductID),
					map[string]interface{}{"deltas": deltas})
				return nil
			}
			return err
		}
		if p.Quantity < d.Delta {
			h.reject(ctx, oid,
				fmt.Sprintf("insufficient stock for product %d (requested %d, available %d)",
					d.ProductID, d.Delta, p.Quantity),
				map[string]interface{}{"deltas": deltas})
			return nil
		}
	}

	for i, d := range deltas {
		if _, err := h.svc.AdjustStock(ctx, d.ProductID, -d.Delta); err != nil {
			if errors.Is(err, stock.ErrInsufficientStock) ||
				errors.Is(err, repo.ErrVersionConflict) ||
				errors.Is(err, repo.ErrProductNotFound) {
				h.compensateDeltas(ctx, deltas[:i])
				h.reject(ctx, oid,
					fmt.Sprintf("adjustment lost for product %d: %v", d.ProductID, err),
					map[string]interface{}{"deltas": deltas})
				return nil
			}
			h.compensateDeltas(ctx, deltas[:i])
			return err
		}
	}

	h.log.Info("order deltas applied", zap.Any("order_id", oid), zap.Int("deltas", len(deltas)))
	return nil
}

func (h *OrderHandlers) compensateDeltas(ctx context.Context, applied []OrderDelta) {
	for _, d := range applied {
		if _, err := h.svc.AdjustStock(ctx, d.ProductID, +d.Delta); err != nil {
			h.log.Error("failed to compensate delta",
				zap.Uint("product_id", d.ProductID),
				zap.Int("delta", d.Delta),
				zap.Error(err),
			)
		}
	}
}

// HandleOrderCancelled returns the full reservation to stock
func (h *OrderHandlers) HandleOrderCancelled(ctx context.Context, payload map[string]interface{}) error {
	oid := orderID(payload)
	items := h.cleanItems(payload)

	if len(items) == 0 {
		h.log.Info("order.cancelled without items, nothing to restore", zap.Any("order_id", oid))
		return nil
	}

	return h.restoreItems(ctx, oid, items)
}

// HandleOrderRejected is a no-op: stock was never reserved for a rejected order
func (h *OrderHandlers) HandleOrderRejected(ctx context.Context, payload map[string]interface{}) error {
	h.log.Info("order rejected, no stock adjustment", zap.Any("order_id", orderID(payload)))
	return nil
}

// HandleOrderDeleted restores stock unless the deleted order had been
// rejected, in which case nothing was ever reserved.
func (h *OrderHandlers) HandleOrderDeleted(ctx context.Context, payload map[string]interface{}) error {
	oid := orderID(payload)
	status, _ := payload["status"].(string)
	items := h.cleanItems(payload)

	if len(items) == 0 {
		h.log.Info("order.deleted without items, nothing to restore", zap.Any("order_id", oid))
		return nil
	}

	if strings.EqualFold(status, "rejected") {
		h.log.Info("order.deleted for rejected order, no stock adjustment", zap.Any("order_id", oid))
		return nil
	}

	return h.restoreItems(ctx, oid, items)
}

func (h *OrderHandlers) restoreItems(ctx context.Context, oid interface{}, items []OrderItem) error {
	for _, it := range items {
		if _, err := h.svc.AdjustStock(ctx, it.ProductID, +it.Quantity); err != nil {
			return fmt.Errorf("failed to restore stock for product %d: %w", it.ProductID, err)
		}
	}
	h.log.Info("stock restored", zap.Any("order_id", oid), zap.Int("items", len(items)))
	return nil
}

// HandleOrderUpdated is informational only and never mutates stock
func (h *OrderHandlers) HandleOrderUpdated(ctx context.Context, payload map[string]interface{}) error {
	h.log.Info("order updated, no stock adjustment",
		zap.Any("order_id", orderID(payload)),
		zap.Any("status", payload["status"]),
	)
	return nil
}

// HandleOrderRequestPrice answers a pricing request from the current
// catalog prices and publishes order.price_calculated. Missing customer_id
// or items aborts without publishing.
func (h *OrderHandlers) HandleOrderRequestPrice(ctx context.Context, payload map[string]interface{}) error {
	oid := orderID(payload)
	customerID, hasCustomer := payload["customer_id"]
	items := h.cleanItems(payload)

	if !hasCustomer || len(items) == 0 {
		h.log.Warn("order.request_price missing customer_id or items, aborting",
			zap.Any("order_id", oid))
		return nil
	}

	total := decimal.Zero
	priced := make([]map[string]interface{}, 0, len(items))

	for _, it := range items {
		p, err := h.svc.Get(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, repo.ErrProductNotFound) {
				h.log.Warn("order.request_price references unknown product, aborting",
					zap.Any("order_id", oid),
					zap.Uint("product_id", it.ProductID),
				)
				return nil
			}
			return err
		}

		unitPrice := decimal.NewFromFloat(p.Price)
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(lineTotal)

		priced = append(priced, map[string]interface{}{
			"product_id": it.ProductID,
			"quantity":   it.Quantity,
			"unit_price": p.Price,
			"line_total": lineTotal.InexactFloat64(),
		})
	}

	h.log.Info("order price calculated",
		zap.Any("order_id", oid),
		zap.Int("items", len(priced)),
		zap.String("total", total.String()),
	)
	return h.mq.Publish(ctx, EventOrderPriceCalculated, map[string]interface{}{
		"order_id":    oid,
		"customer_id": customerID,
		"items":       priced,
		"total":       total.InexactFloat64(),
	})
}
