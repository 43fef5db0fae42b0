// Package order defines the order record and the ledger that stores it.
// The ledger is a keyed store abstraction so a persistent backing store can
// be substituted without touching orchestration logic.
package order

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the order lifecycle status.
type Status string

const (
	StatusCheckoutCompleted Status = "checkout_completed"
	StatusConfirmed         Status = "confirmed"
	StatusFailed            Status = "failed"
	StatusValidationFailed  Status = "validation_failed"
	StatusCancelled         Status = "cancelled"
)

// Record is the unit of persistence. Checkout artifacts are captured
// verbatim at creation; confirm artifacts are attached when confirmation
// runs. Records are never physically deleted: cancellation is a status
// transition.
type Record struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`

	CheckoutRequest  json.RawMessage `json:"checkout_request,omitempty"`
	CheckoutResponse json.RawMessage `json:"checkout_response,omitempty"`
	CheckoutRaw      json.RawMessage `json:"checkout_raw_data,omitempty"`

	ConfirmRequest  json.RawMessage `json:"confirm_request,omitempty"`
	ConfirmResponse json.RawMessage `json:"confirm_response,omitempty"`
	ConfirmRaw      json.RawMessage `json:"confirm_raw_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfirmArtifacts carries the confirm-phase payloads attached to a record
// on status update.
type ConfirmArtifacts struct {
	Request  json.RawMessage
	Response json.RawMessage
	Raw      json.RawMessage
}

// Ledger is the keyed order store. All mutations are atomic per order id;
// UpdateStatus on an unknown id is a silent no-op, not an error.
type Ledger interface {
	Save(rec Record) error
	Get(id string) (Record, bool, error)
	UpdateStatus(id string, status Status, extra *ConfirmArtifacts) error
	List(limit, offset int) ([]Record, error)
	Count() (int, error)
}

// GenerateID returns a fresh order identifier. The format is sortable and
// human-debuggable: order_<yyyymmdd_hhmmss>_<microseconds>.
func GenerateID() string {
	now := time.Now()
	return fmt.Sprintf("order_%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
}
