package checkout

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/DaGlaswen/ai-pay/internal/parse"
)

// Confirm validates the live order against the caller's expectations and,
// only when validation passes, pays for it. The agent's own verdict is
// re-checked locally: every numeric field it reports is reconciled against
// the expected values within the tolerance, and payment is forced to
// unsuccessful whenever validation fails, regardless of what the agent
// claims.
func (s *Service) Confirm(ctx context.Context, expected ExpectedOrder) *ConfirmResult {
	s.workflowMu.Lock()
	defer s.workflowMu.Unlock()

	s.log.Info("confirming order",
		zap.String("order_id", expected.OrderID),
		zap.Float64("expected_total", expected.TotalPrice))

	reply, err := s.agent.RunTask(ctx, confirmPrompt(expected), nil)
	if err != nil {
		s.log.Error("confirm task failed", zap.Error(err))
		return &ConfirmResult{
			ValidationSuccess: false,
			ValidationErrors:  []ValidationError{{Field: "general", Message: err.Error()}},
			PaymentSuccess:    false,
			PaymentError:      err.Error(),
			Status:            "failed",
		}
	}

	raw, err := parse.ExtractJSON(reply)
	if err != nil {
		s.log.Warn("could not extract JSON from confirm reply")
		return &ConfirmResult{
			ValidationSuccess: false,
			ValidationErrors:  []ValidationError{{Field: "general", Message: "could not obtain agent response"}},
			PaymentSuccess:    false,
			Status:            "failed",
		}
	}

	result := &ConfirmResult{
		ValidationSuccess:  parse.Bool(raw["validation_success"], false),
		ActualProductName:  parse.String(raw["actual_product_name"], ""),
		ActualQuantity:     parse.Int(raw["actual_quantity"], 0),
		ActualProductPrice: parse.Number(raw["actual_product_price"], 0),
		ActualDeliveryCost: parse.Number(raw["actual_delivery_cost"], 0),
		ActualTotalPrice:   parse.Number(raw["actual_total_price"], 0),
		PaymentSuccess:     parse.Bool(raw["payment_success"], false),
		PaymentError:       parse.String(raw["payment_error"], ""),
		OrderNumber:        parse.String(raw["order_number"], ""),
		Confirmation:       parse.String(raw["payment_confirmation"], ""),
		Status:             parse.String(raw["status"], ""),
		Raw:                raw,
	}

	// Agent-reported validation errors come through as free-form strings.
	if errs, ok := raw["validation_errors"].([]interface{}); ok {
		for _, e := range errs {
			if msg, ok := e.(string); ok && msg != "" {
				result.ValidationErrors = append(result.ValidationErrors,
					ValidationError{Field: "general", Message: msg})
			}
		}
	}

	result.ValidationErrors = append(result.ValidationErrors, s.reconcile(expected, raw)...)

	if len(result.ValidationErrors) > 0 {
		result.ValidationSuccess = false
	}
	if !result.ValidationSuccess {
		result.Status = "validation_failed"
		result.PaymentSuccess = false
		result.OrderNumber = ""
		result.Confirmation = ""
	} else if result.Status == "" {
		if result.PaymentSuccess {
			result.Status = "confirmed"
		} else {
			result.Status = "failed"
		}
	}

	s.log.Info("confirm completed",
		zap.String("order_id", expected.OrderID),
		zap.String("status", result.Status),
		zap.Bool("payment_success", result.PaymentSuccess))
	return result
}

// reconcile cross-checks every parameter the agent reported against the
// expected order. Fields absent from the reply are not flagged; the agent's
// own validation is supposed to cover them.
func (s *Service) reconcile(expected ExpectedOrder, raw map[string]interface{}) []ValidationError {
	var errs []ValidationError

	if v, ok := raw["actual_product_name"]; ok {
		actual := parse.String(v, "")
		if !strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(expected.ProductName)) {
			errs = append(errs, ValidationError{
				Field:    "product_name",
				Expected: expected.ProductName,
				Actual:   actual,
				Message:  "product name does not match",
			})
		}
	}
	if v, ok := raw["actual_quantity"]; ok {
		actual := parse.Int(v, 0)
		if actual != expected.Quantity {
			errs = append(errs, ValidationError{
				Field:    "quantity",
				Expected: fmt.Sprintf("%d", expected.Quantity),
				Actual:   fmt.Sprintf("%d", actual),
				Message:  "quantity does not match",
			})
		}
	}

	numeric := []struct {
		key      string
		field    string
		expected float64
	}{
		{"actual_product_price", "product_price", expected.ProductPrice},
		{"actual_delivery_cost", "delivery_cost", expected.DeliveryCost},
		{"actual_total_price", "total_price", expected.TotalPrice},
	}
	for _, n := range numeric {
		v, ok := raw[n.key]
		if !ok {
			continue
		}
		actual := parse.Number(v, 0)
		if !WithinTolerance(n.expected, actual, expected.Tolerance) {
			errs = append(errs, ValidationError{
				Field:    n.field,
				Expected: fmt.Sprintf("%g", n.expected),
				Actual:   fmt.Sprintf("%g", actual),
				Message:  fmt.Sprintf("%s differs beyond tolerance", n.field),
			})
		}
	}
	return errs
}
