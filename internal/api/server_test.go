package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaGlaswen/ai-pay/internal/checkout"
	"github.com/DaGlaswen/ai-pay/internal/config"
	"github.com/DaGlaswen/ai-pay/internal/order"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedAgent replays canned replies for each RunTask call.
type scriptedAgent struct {
	replies []string
	errs    []error
	calls   int
	stopped bool
}

func (a *scriptedAgent) Start(ctx context.Context) error { return nil }
func (a *scriptedAgent) Ready() bool                     { return true }
func (a *scriptedAgent) CurrentPage() *rod.Page          { return nil }

func (a *scriptedAgent) Stop() error {
	a.stopped = true
	return nil
}

func (a *scriptedAgent) CreateTab(ctx context.Context, url string) (*rod.Page, error) {
	return nil, nil
}

func (a *scriptedAgent) RunTask(ctx context.Context, instruction string, page *rod.Page) (string, error) {
	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return "", a.errs[i]
	}
	if i < len(a.replies) {
		return a.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func newTestServer(agent *scriptedAgent) (*Server, order.Ledger) {
	cfg := config.DefaultConfig()
	ledger := order.NewMemoryLedger()
	svc := checkout.NewService(agent, nil)
	return NewServer(cfg, svc, ledger, nil), ledger
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func checkoutBody() map[string]interface{} {
	return map[string]interface{}{
		"product_url": "https://shop.example/item/42",
		"quantity":    2,
		"delivery_info": map[string]interface{}{
			"address":         "1 Main St",
			"delivery_method": "courier",
		},
		"notes": "leave at the door",
	}
}

func happyCheckoutReplies() []string {
	return []string{
		`{"product_name": "Wireless Mouse", "product_price": 1490, "availability": "In stock", "is_available": true}`,
		`{"success": true}`,
		`{"success": true, "page_loaded": true}`,
		`{"is_cart_page": true, "product_match": true}`,
		`{"success": true, "set_quantity": 2, "max_available": 10}`,
		`{"delivery_method": "courier", "delivery_cost": 300}`,
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	srv, ledger := newTestServer(&scriptedAgent{replies: happyCheckoutReplies()})
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/checkout", checkoutBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, "Wireless Mouse", resp.Product.Name)
	assert.Equal(t, 2980.0, resp.Subtotal)
	assert.Equal(t, 3280.0, resp.TotalPrice)
	assert.Empty(t, resp.Warnings)

	rec, ok, err := ledger.Get(resp.OrderID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.StatusCheckoutCompleted, rec.Status)
	assert.NotEmpty(t, rec.CheckoutRequest)
	assert.NotEmpty(t, rec.CheckoutRaw)
}

func TestCheckoutQuantityShortfallWarning(t *testing.T) {
	replies := happyCheckoutReplies()
	replies[4] = `{"success": true, "set_quantity": 1, "max_available": 1}`
	srv, _ := newTestServer(&scriptedAgent{replies: replies})

	w := doJSON(t, srv.Router(), http.MethodPost, "/checkout", checkoutBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "requested 2")
	assert.Contains(t, resp.Warnings[0], "added 1")
}

func TestCheckoutPipelineFailureReturns400(t *testing.T) {
	srv, ledger := newTestServer(&scriptedAgent{errs: []error{errors.New("browser crashed")}})

	w := doJSON(t, srv.Router(), http.MethodPost, "/checkout", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "browser crashed")

	n, err := ledger.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "failed checkout must not create an order")
}

func TestCheckoutRejectsInvalidBody(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	w := doJSON(t, srv.Router(), http.MethodPost, "/checkout", map[string]interface{}{
		"quantity": 2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func confirmBody(orderID string) map[string]interface{} {
	return map[string]interface{}{
		"order_id": orderID,
		"product": map[string]interface{}{
			"name":         "Wireless Mouse",
			"price":        1490,
			"quantity":     2,
			"availability": true,
		},
		"delivery": map[string]interface{}{
			"cost":   300,
			"method": "courier",
		},
		"subtotal":    2980,
		"total_price": 3280,
	}
}

func savedOrder(t *testing.T, ledger order.Ledger) string {
	t.Helper()
	id := order.GenerateID()
	require.NoError(t, ledger.Save(order.Record{
		OrderID:          id,
		Status:           order.StatusCheckoutCompleted,
		CheckoutResponse: json.RawMessage(`{"total_price": 3280}`),
	}))
	return id
}

func TestConfirmEndpoint(t *testing.T) {
	agent := &scriptedAgent{replies: []string{`{
		"validation_success": true,
		"actual_product_name": "Wireless Mouse",
		"actual_quantity": 2,
		"actual_product_price": 1490,
		"actual_delivery_cost": 300,
		"actual_total_price": 3280,
		"payment_success": true,
		"order_number": "SHOP-5521",
		"status": "confirmed"
	}`}}
	srv, ledger := newTestServer(agent)
	id := savedOrder(t, ledger)

	w := doJSON(t, srv.Router(), http.MethodPost, "/confirm", confirmBody(id))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ConfirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.ValidationSuccess)
	assert.True(t, resp.PaymentSuccess)
	assert.Equal(t, "confirmed", resp.PaymentStatus)
	assert.Equal(t, "SHOP-5521", resp.OrderNumber)

	rec, ok, err := ledger.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.StatusConfirmed, rec.Status)
	assert.NotEmpty(t, rec.ConfirmResponse)
}

func TestConfirmValidationFailure(t *testing.T) {
	agent := &scriptedAgent{replies: []string{`{
		"validation_success": true,
		"actual_total_price": 3580,
		"payment_success": true,
		"status": "confirmed"
	}`}}
	srv, ledger := newTestServer(agent)
	id := savedOrder(t, ledger)

	w := doJSON(t, srv.Router(), http.MethodPost, "/confirm", confirmBody(id))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ConfirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.False(t, resp.ValidationSuccess)
	assert.False(t, resp.PaymentSuccess, "payment must not be reported successful when validation failed")
	assert.Equal(t, "validation_failed", resp.PaymentStatus)
	require.NotEmpty(t, resp.Discrepancies)

	rec, _, err := ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusValidationFailed, rec.Status)
}

func TestConfirmToleranceResolution(t *testing.T) {
	reply := `{
		"validation_success": true,
		"actual_product_name": "Wireless Mouse",
		"actual_quantity": 2,
		"actual_product_price": 1490,
		"actual_delivery_cost": 300,
		"actual_total_price": 3280.005,
		"payment_success": true,
		"status": "confirmed"
	}`

	t.Run("omitted tolerance uses the default", func(t *testing.T) {
		srv, ledger := newTestServer(&scriptedAgent{replies: []string{reply}})
		id := savedOrder(t, ledger)

		w := doJSON(t, srv.Router(), http.MethodPost, "/confirm", confirmBody(id))
		require.Equal(t, http.StatusOK, w.Code)

		var resp ConfirmResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.ValidationSuccess, "a 0.005 difference sits inside the 0.01 default")
	})

	t.Run("explicit zero tolerance is exact", func(t *testing.T) {
		srv, ledger := newTestServer(&scriptedAgent{replies: []string{reply}})
		id := savedOrder(t, ledger)

		body := confirmBody(id)
		body["validation_tolerance"] = 0

		w := doJSON(t, srv.Router(), http.MethodPost, "/confirm", body)
		require.Equal(t, http.StatusOK, w.Code)

		var resp ConfirmResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.ValidationSuccess)
		assert.Equal(t, "validation_failed", resp.PaymentStatus)
	})
}

func TestConfirmUnknownOrder(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	w := doJSON(t, srv.Router(), http.MethodPost, "/confirm", confirmBody("order_19990101_000000_000000"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrder(t *testing.T) {
	srv, ledger := newTestServer(&scriptedAgent{})
	id := savedOrder(t, ledger)

	w := doJSON(t, srv.Router(), http.MethodGet, "/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, id, body["order_id"])
	assert.Equal(t, "checkout_completed", body["status"])
	assert.NotNil(t, body["checkout_data"])
	assert.Nil(t, body["confirm_data"])
}

func TestGetOrderNotFound(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	w := doJSON(t, srv.Router(), http.MethodGet, "/orders/order_19990101_000000_000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders(t *testing.T) {
	srv, ledger := newTestServer(&scriptedAgent{})
	savedOrder(t, ledger)
	savedOrder(t, ledger)

	w := doJSON(t, srv.Router(), http.MethodGet, "/orders?limit=1&offset=0", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Orders []map[string]interface{} `json:"orders"`
		Total  int                      `json:"total"`
		Limit  int                      `json:"limit"`
		Offset int                      `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Orders, 1)
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.Limit)
	assert.Equal(t, 3280.0, body.Orders[0]["total_price"])
}

func TestListOrdersZeroLimitUsesDefault(t *testing.T) {
	srv, ledger := newTestServer(&scriptedAgent{})
	savedOrder(t, ledger)
	savedOrder(t, ledger)

	w := doJSON(t, srv.Router(), http.MethodGet, "/orders?limit=0", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Orders []map[string]interface{} `json:"orders"`
		Limit  int                      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 50, body.Limit)
	assert.Len(t, body.Orders, 2, "limit=0 must not mean unlimited nor empty")
}

func TestCancelOrder(t *testing.T) {
	srv, ledger := newTestServer(&scriptedAgent{})
	id := savedOrder(t, ledger)

	w := doJSON(t, srv.Router(), http.MethodDelete, "/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	rec, ok, err := ledger.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, order.StatusCancelled, rec.Status)
}

func TestCancelUnknownOrder(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	w := doJSON(t, srv.Router(), http.MethodDelete, "/orders/order_19990101_000000_000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	srv, ledger := newTestServer(&scriptedAgent{})
	savedOrder(t, ledger)

	w := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["automation_ready"])
	assert.Equal(t, 1.0, body["orders_count"])
}

func TestConfigEndpointHidesSecrets(t *testing.T) {
	srv, _ := newTestServer(&scriptedAgent{})

	w := doJSON(t, srv.Router(), http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), srv.cfg.Card.Number)
	assert.NotContains(t, w.Body.String(), "api_key")
}

func TestCleanupStopsAgent(t *testing.T) {
	agent := &scriptedAgent{}
	srv, _ := newTestServer(agent)

	w := doJSON(t, srv.Router(), http.MethodPost, "/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, agent.stopped)
}
