package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedOrder() ExpectedOrder {
	return ExpectedOrder{
		OrderID:        "order_20260828_120000_000001",
		ProductName:    "Wireless Mouse",
		Quantity:       2,
		ProductPrice:   1490,
		DeliveryCost:   300,
		TotalPrice:     3280,
		DeliveryMethod: "courier",
		PaymentMethod:  "card",
		Tolerance:      0.01,
	}
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name      string
		expected  float64
		actual    float64
		tolerance float64
		want      bool
	}{
		{"exact match", 100, 100, 0.01, true},
		{"inside tolerance", 100, 100.005, 0.01, true},
		{"outside tolerance", 100, 100.02, 0.01, false},
		{"negative difference inside", 100, 99.995, 0.01, true},
		{"boundary is inclusive", 100, 100.25, 0.25, true},
		{"wide tolerance", 100, 105, 10, true},
		{"zero tolerance accepts exact match", 100, 100, 0, true},
		{"zero tolerance rejects any difference", 100, 100.005, 0, false},
		{"negative tolerance rejects everything", 100, 100, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithinTolerance(tt.expected, tt.actual, tt.tolerance))
		})
	}
}

func TestConfirmSuccess(t *testing.T) {
	agent := &fakeAgent{replies: []string{`{
		"validation_success": true,
		"validation_errors": [],
		"actual_product_name": "Wireless Mouse",
		"actual_quantity": 2,
		"actual_product_price": 1490,
		"actual_delivery_cost": 300,
		"actual_total_price": 3280,
		"payment_success": true,
		"order_number": "SHOP-5521",
		"status": "confirmed"
	}`}}
	svc := NewService(agent, nil)

	res := svc.Confirm(context.Background(), expectedOrder())

	assert.True(t, res.ValidationSuccess)
	assert.Empty(t, res.ValidationErrors)
	assert.True(t, res.PaymentSuccess)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, "SHOP-5521", res.OrderNumber)
	assert.Equal(t, 3280.0, res.ActualTotalPrice)
}

func TestConfirmLocalReconciliationOverridesAgentVerdict(t *testing.T) {
	// The agent claims validation passed, but the total it observed is off
	// by more than the tolerance. Payment must be reported unsuccessful no
	// matter what the agent says.
	agent := &fakeAgent{replies: []string{`{
		"validation_success": true,
		"actual_product_name": "Wireless Mouse",
		"actual_quantity": 2,
		"actual_product_price": 1490,
		"actual_delivery_cost": 300,
		"actual_total_price": 3580,
		"payment_success": true,
		"order_number": "SHOP-9999",
		"status": "confirmed"
	}`}}
	svc := NewService(agent, nil)

	res := svc.Confirm(context.Background(), expectedOrder())

	assert.False(t, res.ValidationSuccess)
	assert.False(t, res.PaymentSuccess)
	assert.Empty(t, res.OrderNumber)
	assert.Equal(t, "validation_failed", res.Status)
	require.Len(t, res.ValidationErrors, 1)
	assert.Equal(t, "total_price", res.ValidationErrors[0].Field)
	assert.Equal(t, "3280", res.ValidationErrors[0].Expected)
	assert.Equal(t, "3580", res.ValidationErrors[0].Actual)
}

func TestConfirmPriceWithinToleranceAccepted(t *testing.T) {
	expected := expectedOrder()
	expected.Tolerance = 5

	agent := &fakeAgent{replies: []string{`{
		"validation_success": true,
		"actual_product_name": "WIRELESS MOUSE",
		"actual_quantity": 2,
		"actual_product_price": 1490,
		"actual_delivery_cost": 300,
		"actual_total_price": 3283,
		"payment_success": true,
		"status": "confirmed"
	}`}}
	svc := NewService(agent, nil)

	res := svc.Confirm(context.Background(), expected)

	assert.True(t, res.ValidationSuccess, "case differences and in-tolerance totals must pass")
	assert.Equal(t, "confirmed", res.Status)
}

func TestConfirmZeroToleranceIsExact(t *testing.T) {
	expected := expectedOrder()
	expected.Tolerance = 0

	agent := &fakeAgent{replies: []string{`{
		"validation_success": true,
		"actual_product_name": "Wireless Mouse",
		"actual_quantity": 2,
		"actual_product_price": 1490,
		"actual_delivery_cost": 300,
		"actual_total_price": 3280.005,
		"payment_success": true,
		"status": "confirmed"
	}`}}
	svc := NewService(agent, nil)

	res := svc.Confirm(context.Background(), expected)

	assert.False(t, res.ValidationSuccess, "a requested exact comparison must flag any difference")
	assert.False(t, res.PaymentSuccess)
	assert.Equal(t, "validation_failed", res.Status)
	require.Len(t, res.ValidationErrors, 1)
	assert.Equal(t, "total_price", res.ValidationErrors[0].Field)
}

func TestConfirmAgentReportedValidationErrors(t *testing.T) {
	agent := &fakeAgent{replies: []string{`{
		"validation_success": false,
		"validation_errors": ["delivery method changed to pickup"],
		"actual_total_price": 3280,
		"payment_success": false,
		"status": "validation_failed"
	}`}}
	svc := NewService(agent, nil)

	res := svc.Confirm(context.Background(), expectedOrder())

	assert.False(t, res.ValidationSuccess)
	assert.Equal(t, "validation_failed", res.Status)
	require.NotEmpty(t, res.ValidationErrors)
	assert.Equal(t, "general", res.ValidationErrors[0].Field)
	assert.Contains(t, res.ValidationErrors[0].Message, "pickup")
}

func TestConfirmUnparseableReply(t *testing.T) {
	agent := &fakeAgent{replies: []string{"the page would not load, sorry"}}
	svc := NewService(agent, nil)

	res := svc.Confirm(context.Background(), expectedOrder())

	assert.False(t, res.ValidationSuccess)
	assert.False(t, res.PaymentSuccess)
	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, 0.0, res.ActualTotalPrice)
	require.Len(t, res.ValidationErrors, 1)
	assert.Equal(t, "could not obtain agent response", res.ValidationErrors[0].Message)
}

func TestConfirmAgentError(t *testing.T) {
	agent := &fakeAgent{errs: []error{errors.New("browser crashed")}}
	svc := NewService(agent, nil)

	res := svc.Confirm(context.Background(), expectedOrder())

	assert.False(t, res.ValidationSuccess)
	assert.False(t, res.PaymentSuccess)
	assert.Equal(t, "failed", res.Status)
	assert.Contains(t, res.PaymentError, "browser crashed")
}

func TestConfirmPromptCarriesExpectations(t *testing.T) {
	agent := &fakeAgent{replies: []string{`{"validation_success": false, "payment_success": false, "status": "validation_failed"}`}}
	svc := NewService(agent, nil)
	svc.Confirm(context.Background(), expectedOrder())

	require.Len(t, agent.instructions, 1)
	prompt := agent.instructions[0]
	assert.Contains(t, prompt, "Wireless Mouse")
	assert.Contains(t, prompt, "3280")
	assert.Contains(t, prompt, "{card_number}")
	assert.NotContains(t, prompt, "4111")
}
