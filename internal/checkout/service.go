package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/DaGlaswen/ai-pay/internal/parse"
)

// Service runs the purchase workflows over a shared agent session.
type Service struct {
	agent AgentSession
	log   *zap.Logger

	// workflowMu holds the browsing session for a whole workflow: at most
	// one checkout or confirm drives it at a time, never interleaving steps.
	workflowMu sync.Mutex
}

// NewService creates the workflow orchestrator.
func NewService(agent AgentSession, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{agent: agent, log: log.Named("checkout")}
}

// Agent exposes the underlying session for lifecycle endpoints.
func (s *Service) Agent() AgentSession {
	return s.agent
}

// Checkout drives the store from product page to a filled checkout form and
// returns the merged order details. Payment does not happen here. Failures
// never surface as errors: a failed pipeline returns a result with
// Success=false and the step error recorded.
func (s *Service) Checkout(ctx context.Context, params CheckoutParams) *CheckoutResult {
	s.workflowMu.Lock()
	defer s.workflowMu.Unlock()

	page, err := s.agent.CreateTab(ctx, params.ProductURL)
	if err != nil {
		return s.failedCheckout(params, fmt.Errorf("open product page: %w", err))
	}

	raw := map[string]interface{}{}

	productData, err := s.runStep(ctx, "analyze product", productAnalyzerPrompt, page, raw)
	if err != nil {
		return s.failedCheckout(params, err)
	}
	productName := parse.String(productData["product_name"], "")
	productPrice := parse.Number(productData["product_price"], 0)
	if productName == "" {
		return s.failedCheckout(params, fmt.Errorf("product page did not yield a product name"))
	}

	addData, err := s.runStep(ctx, "add to cart", cartAdderPrompt, page, raw)
	if err != nil {
		return s.failedCheckout(params, err)
	}
	if !parse.Bool(addData["success"], false) {
		return s.failedCheckout(params, fmt.Errorf("add to cart failed: %s", parse.String(addData["error"], "unknown error")))
	}

	navData, err := s.runStep(ctx, "open cart", cartNavigatorPrompt, page, raw)
	if err != nil {
		return s.failedCheckout(params, err)
	}
	if !parse.Bool(navData["success"], false) {
		return s.failedCheckout(params, fmt.Errorf("cart navigation failed: %s", parse.String(navData["error"], "unknown error")))
	}

	// Later steps run against whatever page the store left the session on.
	cartPage := s.agent.CurrentPage()
	if cartPage == nil {
		cartPage = page
	}

	// The verification outcome is recorded but not fatal: stray items the
	// agent could not remove show up as a mismatch in the raw data.
	verifyData, err := s.runStep(ctx, "verify cart",
		cartVerificationPrompt(productName, productPrice), cartPage, raw)
	if err != nil {
		return s.failedCheckout(params, err)
	}
	if !parse.Bool(verifyData["product_match"], true) {
		s.log.Warn("cart verification reported a mismatch",
			zap.String("error", parse.String(verifyData["error"], "")))
	}

	quantityData, err := s.runStep(ctx, "set quantity",
		quantityManagerPrompt(productName, params.Quantity), cartPage, raw)
	if err != nil {
		return s.failedCheckout(params, err)
	}
	actualQuantity := parse.Int(quantityData["set_quantity"], params.Quantity)

	checkoutData, err := s.runStep(ctx, "fill checkout form",
		checkoutProcessorPrompt(params.DeliveryMethod, params.Address, params.Notes), cartPage, raw)
	if err != nil {
		return s.failedCheckout(params, err)
	}

	result := &CheckoutResult{
		Success:           true,
		ProductName:       productName,
		ProductPrice:      productPrice,
		Availability:      parse.String(productData["availability"], ""),
		IsAvailable:       parse.Bool(productData["is_available"], true),
		Currency:          parse.String(productData["currency"], ""),
		RequestedQuantity: params.Quantity,
		ActualQuantity:    actualQuantity,
		MaxAvailable:      parse.Int(quantityData["max_available"], 0),
		DeliveryMethod:    parse.String(checkoutData["delivery_method"], params.DeliveryMethod),
		DeliveryCost:      parse.Number(checkoutData["delivery_cost"], 0),
		EstimatedDate:     parse.String(checkoutData["estimated_date"], ""),
		Subtotal:          parse.Number(checkoutData["subtotal"], 0),
		TotalPrice:        parse.Number(checkoutData["total_price"], 0),
		Raw:               raw,
	}
	result.normalize()

	if result.ActualQuantity != result.RequestedQuantity {
		s.log.Warn("quantity differs from requested",
			zap.Int("requested", result.RequestedQuantity),
			zap.Int("actual", result.ActualQuantity))
	}
	s.log.Info("checkout pipeline completed",
		zap.String("product", result.ProductName),
		zap.Float64("total", result.TotalPrice))
	return result
}

// normalize fills derived amounts the agent did not report. Extracted
// non-zero values always win; computing twice changes nothing.
func (r *CheckoutResult) normalize() {
	if r.Subtotal == 0 {
		r.Subtotal = r.ProductPrice * float64(r.ActualQuantity)
	}
	if r.TotalPrice == 0 {
		r.TotalPrice = r.Subtotal + r.DeliveryCost
	}
}

func (s *Service) failedCheckout(params CheckoutParams, err error) *CheckoutResult {
	s.log.Error("checkout pipeline failed", zap.Error(err))
	return &CheckoutResult{
		Success:           false,
		ErrorMessage:      err.Error(),
		RequestedQuantity: params.Quantity,
		ActualQuantity:    0,
		TotalPrice:        0,
	}
}

// runStep executes one agent task and extracts its JSON payload, folding the
// extracted fields into the shared raw map.
func (s *Service) runStep(ctx context.Context, name, prompt string, page *rod.Page, raw map[string]interface{}) (map[string]interface{}, error) {
	s.log.Info("running step", zap.String("step", name))

	reply, err := s.agent.RunTask(ctx, prompt, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	data, err := parse.ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("%s: %w (reply: %s)", name, err, truncate(reply, 200))
	}
	for k, v := range data {
		raw[k] = v
	}
	return data, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
