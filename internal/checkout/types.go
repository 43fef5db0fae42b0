// Package checkout orchestrates the two-phase purchase workflow: building a
// cart with full order details (checkout) and validating plus paying for it
// (confirm). Both phases drive the store through the browsing agent and
// normalize its free-form replies into typed results.
package checkout

import (
	"context"

	"github.com/go-rod/rod"
)

// AgentSession is the slice of the agent runner the orchestrators need.
type AgentSession interface {
	Start(ctx context.Context) error
	CreateTab(ctx context.Context, url string) (*rod.Page, error)
	CurrentPage() *rod.Page
	RunTask(ctx context.Context, instruction string, page *rod.Page) (string, error)
	Stop() error
	Ready() bool
}

// CheckoutParams is the input to the cart-building phase.
type CheckoutParams struct {
	ProductURL     string
	Quantity       int
	DeliveryMethod string
	Address        string
	Notes          string
}

// CheckoutResult is the merged outcome of the cart-building pipeline. Raw
// holds the union of every step's extracted fields for audit storage.
type CheckoutResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	ProductName  string  `json:"product_name"`
	ProductPrice float64 `json:"product_price"`
	Availability string  `json:"availability_status"`
	IsAvailable  bool    `json:"is_available"`
	Currency     string  `json:"currency,omitempty"`

	RequestedQuantity int `json:"requested_quantity"`
	ActualQuantity    int `json:"actual_quantity"`
	MaxAvailable      int `json:"max_available,omitempty"`

	DeliveryMethod string  `json:"delivery_method"`
	DeliveryCost   float64 `json:"delivery_cost"`
	EstimatedDate  string  `json:"estimated_delivery_date,omitempty"`

	Subtotal   float64 `json:"subtotal"`
	TotalPrice float64 `json:"total_price"`

	Raw map[string]interface{} `json:"-"`
}

// ExpectedOrder carries the caller's view of the order for validation
// during confirmation.
type ExpectedOrder struct {
	OrderID        string
	ProductName    string
	Quantity       int
	ProductPrice   float64
	DeliveryCost   float64
	TotalPrice     float64
	DeliveryMethod string
	PaymentMethod  string
	Tolerance      float64
}

// ValidationError records one mismatch between expected and observed order
// parameters.
type ValidationError struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message"`
}

// ConfirmResult is the outcome of the validate-and-pay phase.
type ConfirmResult struct {
	ValidationSuccess bool              `json:"validation_success"`
	ValidationErrors  []ValidationError `json:"validation_errors,omitempty"`

	ActualProductName  string  `json:"actual_product_name,omitempty"`
	ActualQuantity     int     `json:"actual_quantity,omitempty"`
	ActualProductPrice float64 `json:"actual_product_price,omitempty"`
	ActualDeliveryCost float64 `json:"actual_delivery_cost,omitempty"`
	ActualTotalPrice   float64 `json:"actual_total_price"`

	PaymentSuccess bool   `json:"payment_success"`
	PaymentError   string `json:"payment_error,omitempty"`
	OrderNumber    string `json:"order_number,omitempty"`
	Confirmation   string `json:"payment_confirmation,omitempty"`

	Status string `json:"status"` // confirmed, failed, validation_failed

	Raw map[string]interface{} `json:"-"`
}
