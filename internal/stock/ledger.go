package stock

import "errors"

// ErrInsufficientStock is returned when an adjustment would drive the
// quantity below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// Decide applies a signed delta to the current quantity and either accepts
// the new quantity or rejects the adjustment. Pure decision logic: no I/O,
// no side effects. A zero delta is a valid no-op.
func Decide(currentQuantity, delta int) (int, error) {
	newQuantity := currentQuantity + delta
	if newQuantity < 0 {
		return currentQuantity, ErrInsufficientStock
	}
	return newQuantity, nil
}
