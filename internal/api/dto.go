// Package api exposes the purchase automation service over HTTP.
package api

import (
	"time"

	"github.com/DaGlaswen/ai-pay/internal/checkout"
)

// DeliveryInfo is the caller-supplied delivery preferences.
type DeliveryInfo struct {
	Address        string `json:"address" binding:"required"`
	PreferredDate  string `json:"preferred_date,omitempty"`
	DeliveryMethod string `json:"delivery_method,omitempty"`
	RecipientName  string `json:"recipient_name,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// CheckoutRequest starts the cart-building phase.
type CheckoutRequest struct {
	ProductURL    string       `json:"product_url" binding:"required,url"`
	Quantity      int          `json:"quantity" binding:"omitempty,gte=1"`
	DeliveryInfo  DeliveryInfo `json:"delivery_info" binding:"required"`
	Notes         string       `json:"notes,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
}

// ProductInfo describes the product as observed in the store.
type ProductInfo struct {
	Name                 string  `json:"name"`
	Price                float64 `json:"price"`
	Quantity             int     `json:"quantity"`
	Availability         bool    `json:"availability"`
	MaxAvailableQuantity int     `json:"max_available_quantity,omitempty"`
	Currency             string  `json:"currency"`
}

// DeliveryDetails describes the delivery terms the store offered.
type DeliveryDetails struct {
	Cost          float64 `json:"cost"`
	EstimatedDate string  `json:"estimated_date,omitempty"`
	Method        string  `json:"method"`
	Address       string  `json:"address,omitempty"`
}

// CheckoutResponse is the outcome of the cart-building phase. No payment
// has happened yet.
type CheckoutResponse struct {
	OrderID            string          `json:"order_id"`
	Success            bool            `json:"success"`
	Product            ProductInfo     `json:"product"`
	Delivery           DeliveryDetails `json:"delivery"`
	Subtotal           float64         `json:"subtotal"`
	TotalPrice         float64         `json:"total_price"`
	Timestamp          time.Time       `json:"timestamp"`
	AvailabilityStatus string          `json:"availability_status"`
	Notes              string          `json:"notes,omitempty"`
	Warnings           []string        `json:"warnings"`
	ErrorMessage       string          `json:"error_message,omitempty"`
}

// ConfirmRequest asks the service to validate and pay for an order created
// by a previous checkout call.
type ConfirmRequest struct {
	OrderID             string          `json:"order_id" binding:"required"`
	Product             ProductInfo     `json:"product" binding:"required"`
	Delivery            DeliveryDetails `json:"delivery" binding:"required"`
	Subtotal            float64         `json:"subtotal"`
	TotalPrice          float64         `json:"total_price" binding:"required"`
	PaymentMethod string `json:"payment_method,omitempty"`

	// Nil means "not supplied": the default tolerance applies. An explicit
	// zero requests exact comparison.
	ValidationTolerance *float64 `json:"validation_tolerance,omitempty"`
}

// ConfirmResponse reports the validation and payment outcome.
type ConfirmResponse struct {
	Success           bool                       `json:"success"`
	OrderID           string                     `json:"order_id"`
	ValidationSuccess bool                       `json:"validation_success"`
	PaymentSuccess    bool                       `json:"payment_success"`
	ActualTotalPrice  float64                    `json:"actual_total_price"`
	PaymentStatus     string                     `json:"payment_status"`
	OrderNumber       string                     `json:"order_number,omitempty"`
	Discrepancies     []checkout.ValidationError `json:"discrepancies"`
	Message           string                     `json:"message"`
	Timestamp         time.Time                  `json:"timestamp"`
}
