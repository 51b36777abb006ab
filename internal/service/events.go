package service

// Routing keys for the domain events published by ProductService.
const (
	EventProductCreated     = "product.created"
	EventProductUpdated     = "product.updated"
	EventProductDeleted     = "product.deleted"
	EventProductActivated   = "product.activated"
	EventProductDeactivated = "product.deactivated"
)
