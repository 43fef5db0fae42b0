package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DaGlaswen/ai-pay/internal/checkout"
	"github.com/DaGlaswen/ai-pay/internal/config"
	"github.com/DaGlaswen/ai-pay/internal/order"
)

// Server wires the workflow orchestrator and the order ledger into HTTP
// handlers.
type Server struct {
	cfg    *config.Config
	svc    *checkout.Service
	ledger order.Ledger
	log    *zap.Logger
}

// NewServer creates the HTTP layer.
func NewServer(cfg *config.Config, svc *checkout.Service, ledger order.Ledger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, svc: svc, ledger: ledger, log: log.Named("api")}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.log), CORS())

	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.GET("/config", s.configInfo)
	r.POST("/cleanup", s.cleanup)

	r.POST("/checkout", s.checkout)
	r.POST("/confirm", s.confirm)
	r.GET("/orders", s.listOrders)
	r.GET("/orders/:order_id", s.getOrder)
	r.DELETE("/orders/:order_id", s.cancelOrder)

	return r
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        s.cfg.Name,
		"version":     s.cfg.Version,
		"description": "AI-driven checkout automation for online stores",
	})
}

func (s *Server) health(c *gin.Context) {
	count, _ := s.ledger.Count()
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"timestamp":        time.Now(),
		"automation_ready": s.svc.Agent().Ready(),
		"orders_count":     count,
		"version":          s.cfg.Version,
	})
}

// configInfo reports the non-secret part of the runtime configuration.
func (s *Server) configInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default_phone":    s.cfg.Contact.Phone,
		"default_email":    s.cfg.Contact.Email,
		"default_name":     s.cfg.Contact.FullName,
		"browser_headless": s.cfg.Browser.Headless,
		"browser_timeout":  s.cfg.Browser.NavigationTimeoutMs,
	})
}

func (s *Server) cleanup(c *gin.Context) {
	if err := s.svc.Agent().Stop(); err != nil {
		s.log.Warn("browser cleanup failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "browser closed and resources released"})
}

func (s *Server) checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	orderID := order.GenerateID()
	s.log.Info("starting checkout",
		zap.String("order_id", orderID),
		zap.String("product_url", req.ProductURL),
		zap.Int("quantity", req.Quantity))

	deliveryMethod := req.DeliveryInfo.DeliveryMethod
	if deliveryMethod == "" {
		deliveryMethod = "Courier delivery"
	}

	result := s.svc.Checkout(c.Request.Context(), checkout.CheckoutParams{
		ProductURL:     req.ProductURL,
		Quantity:       req.Quantity,
		DeliveryMethod: deliveryMethod,
		Address:        req.DeliveryInfo.Address,
		Notes:          req.Notes,
	})
	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "unknown error while building the cart"
		}
		s.log.Error("checkout failed", zap.String("order_id", orderID), zap.String("error", msg))
		c.JSON(http.StatusBadRequest, gin.H{"detail": msg})
		return
	}

	var warnings []string
	if result.RequestedQuantity != result.ActualQuantity {
		warnings = append(warnings,
			"requested "+strconv.Itoa(result.RequestedQuantity)+" pcs, added "+strconv.Itoa(result.ActualQuantity)+" pcs")
	}

	resp := CheckoutResponse{
		OrderID: orderID,
		Success: true,
		Product: ProductInfo{
			Name:                 result.ProductName,
			Price:                result.ProductPrice,
			Quantity:             result.ActualQuantity,
			Availability:         result.IsAvailable,
			MaxAvailableQuantity: result.MaxAvailable,
			Currency:             result.Currency,
		},
		Delivery: DeliveryDetails{
			Cost:          result.DeliveryCost,
			EstimatedDate: result.EstimatedDate,
			Method:        result.DeliveryMethod,
			Address:       req.DeliveryInfo.Address,
		},
		Subtotal:           result.Subtotal,
		TotalPrice:         result.TotalPrice,
		Timestamp:          time.Now(),
		AvailabilityStatus: result.Availability,
		Notes:              req.Notes,
		Warnings:           warnings,
	}

	s.saveCheckout(orderID, &req, &resp, result)

	s.log.Info("checkout completed",
		zap.String("order_id", orderID),
		zap.Float64("total_price", resp.TotalPrice))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) saveCheckout(orderID string, req *CheckoutRequest, resp *CheckoutResponse, result *checkout.CheckoutResult) {
	reqJSON, _ := json.Marshal(req)
	respJSON, _ := json.Marshal(resp)
	rawJSON, _ := json.Marshal(result.Raw)

	if err := s.ledger.Save(order.Record{
		OrderID:          orderID,
		Status:           order.StatusCheckoutCompleted,
		CheckoutRequest:  reqJSON,
		CheckoutResponse: respJSON,
		CheckoutRaw:      rawJSON,
	}); err != nil {
		s.log.Error("failed to save order", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Server) confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	_, ok, err := s.ledger.Get(req.OrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "order not found"})
		return
	}

	tolerance := checkout.DefaultTolerance
	if req.ValidationTolerance != nil {
		tolerance = *req.ValidationTolerance
	}

	result := s.svc.Confirm(c.Request.Context(), checkout.ExpectedOrder{
		OrderID:        req.OrderID,
		ProductName:    req.Product.Name,
		Quantity:       req.Product.Quantity,
		ProductPrice:   req.Product.Price,
		DeliveryCost:   req.Delivery.Cost,
		TotalPrice:     req.TotalPrice,
		DeliveryMethod: req.Delivery.Method,
		PaymentMethod:  req.PaymentMethod,
		Tolerance:      tolerance,
	})

	success := result.ValidationSuccess && result.PaymentSuccess
	message := "order confirmed and paid"
	switch {
	case !result.ValidationSuccess:
		message = "order validation failed"
	case !result.PaymentSuccess:
		message = "payment failed"
		if result.PaymentError != "" {
			message = "payment failed: " + result.PaymentError
		}
	}

	resp := ConfirmResponse{
		Success:           success,
		OrderID:           req.OrderID,
		ValidationSuccess: result.ValidationSuccess,
		PaymentSuccess:    result.PaymentSuccess,
		ActualTotalPrice:  result.ActualTotalPrice,
		PaymentStatus:     result.Status,
		OrderNumber:       result.OrderNumber,
		Discrepancies:     result.ValidationErrors,
		Message:           message,
		Timestamp:         time.Now(),
	}

	reqJSON, _ := json.Marshal(req)
	respJSON, _ := json.Marshal(resp)
	rawJSON, _ := json.Marshal(result.Raw)
	if err := s.ledger.UpdateStatus(req.OrderID, statusFromConfirm(result.Status), &order.ConfirmArtifacts{
		Request:  reqJSON,
		Response: respJSON,
		Raw:      rawJSON,
	}); err != nil {
		s.log.Error("failed to update order", zap.String("order_id", req.OrderID), zap.Error(err))
	}

	s.log.Info("confirm completed",
		zap.String("order_id", req.OrderID),
		zap.String("status", result.Status))
	c.JSON(http.StatusOK, resp)
}

func statusFromConfirm(status string) order.Status {
	switch status {
	case "confirmed":
		return order.StatusConfirmed
	case "validation_failed":
		return order.StatusValidationFailed
	default:
		return order.StatusFailed
	}
}

func (s *Server) getOrder(c *gin.Context) {
	id := c.Param("order_id")
	rec, ok, err := s.ledger.Get(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":      rec.OrderID,
		"status":        rec.Status,
		"created_at":    rec.CreatedAt,
		"updated_at":    rec.UpdatedAt,
		"checkout_data": rawOrNil(rec.CheckoutResponse),
		"confirm_data":  rawOrNil(rec.ConfirmResponse),
	})
}

// rawOrNil keeps empty stored payloads out of the JSON as explicit nulls.
func rawOrNil(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (s *Server) listOrders(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	records, err := s.ledger.List(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	total, _ := s.ledger.Count()

	items := make([]gin.H, 0, len(records))
	for _, rec := range records {
		items = append(items, gin.H{
			"order_id":    rec.OrderID,
			"status":      rec.Status,
			"created_at":  rec.CreatedAt,
			"total_price": totalPriceOf(rec),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func totalPriceOf(rec order.Record) float64 {
	var resp struct {
		TotalPrice float64 `json:"total_price"`
	}
	if len(rec.CheckoutResponse) > 0 {
		_ = json.Unmarshal(rec.CheckoutResponse, &resp)
	}
	return resp.TotalPrice
}

func (s *Server) cancelOrder(c *gin.Context) {
	id := c.Param("order_id")
	_, ok, err := s.ledger.Get(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "order not found"})
		return
	}

	if err := s.ledger.UpdateStatus(id, order.StatusCancelled, nil); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	s.log.Info("order cancelled", zap.String("order_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "order " + id + " cancelled"})
}
