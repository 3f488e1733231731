package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/rl1809/grocery-store/internal/auth"
	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/core/service"
)

type HTTPHandler struct {
	orders    *service.OrderService
	inventory *service.InventoryService
	logger    *zap.Logger
}

func NewHTTPHandler(orders *service.OrderService, inventory *service.InventoryService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{orders: orders, inventory: inventory, logger: logger.Named("http")}
}

// NewRouter mounts every route on a fresh gin engine.
func NewRouter(h *HTTPHandler, authn auth.Authenticator, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName), requestLogger(h.logger))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api/v1", h.Authenticate(authn))
	admin := h.RequireAdmin()

	groceries := api.Group("/groceries")
	groceries.POST("", admin, h.AddGroceries)
	groceries.GET("", h.ListGroceries)
	groceries.GET("/:id", h.GetGrocery)
	groceries.PUT("/:id", admin, h.UpdateGrocery)
	groceries.DELETE("/:id", admin, h.DeleteGrocery)
	groceries.PUT("/:id/manage", admin, h.ManageInventory)

	orders := api.Group("/orders")
	orders.POST("", h.PlaceOrder)
	orders.GET("", h.ListOrders)
	orders.GET("/:id", h.GetOrder)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) AddGroceries(c *gin.Context) {
	var req AddGroceriesRequest
	if !h.bind(c, &req) {
		return
	}

	items := make([]domain.NewItem, 0, len(req.Groceries))
	for _, g := range req.Groceries {
		stock, ok := toInt(g.Stock)
		if !ok {
			h.fail(c, domain.NewValidationError("stock", "stock must be a non-negative integer"))
			return
		}
		items = append(items, domain.NewItem{Name: g.Name, Price: g.Price, Stock: stock, Unit: g.Unit})
	}

	saved, err := h.inventory.AddItems(c.Request.Context(), items)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, "groceries added successfully", newGroceryResponses(saved))
}

func (h *HTTPHandler) ListGroceries(c *gin.Context) {
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(c, "offset")
	if !ok {
		return
	}

	page, err := h.inventory.ListItems(c.Request.Context(), service.ListParams{
		SearchFilter: c.Query("searchFilter"),
		Limit:        limit,
		Offset:       offset,
		SortBy:       c.Query("sortBy"),
		SortOrder:    c.Query("sortOrder"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "groceries fetched successfully", newGroceryPage(page))
}

func (h *HTTPHandler) GetGrocery(c *gin.Context) {
	item, err := h.inventory.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "grocery fetched successfully", newGroceryResponse(*item))
}

func (h *HTTPHandler) UpdateGrocery(c *gin.Context) {
	var req UpdateGroceryRequest
	if !h.bind(c, &req) {
		return
	}

	patch := domain.ItemPatch{Name: req.Name, Price: req.Price}
	if req.Stock != nil {
		stock, ok := toInt(*req.Stock)
		if !ok {
			h.fail(c, domain.NewValidationError("stock", "stock must be a non-negative integer"))
			return
		}
		patch.Stock = &stock
	}

	item, err := h.inventory.UpdateItem(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "grocery updated successfully", newGroceryResponse(*item))
}

func (h *HTTPHandler) DeleteGrocery(c *gin.Context) {
	if err := h.inventory.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "grocery deleted successfully", nil)
}

func (h *HTTPHandler) ManageInventory(c *gin.Context) {
	var req ManageInventoryRequest
	if !h.bind(c, &req) {
		return
	}

	raw := req.Amount
	if raw == nil {
		raw = req.Stock
	}
	if raw == nil {
		h.fail(c, domain.NewValidationError("amount", "amount is required"))
		return
	}
	amount, ok := toInt(*raw)
	if !ok {
		h.fail(c, domain.NewValidationError("amount", "amount must be a non-negative integer"))
		return
	}

	item, err := h.inventory.AdjustStock(c.Request.Context(), c.Param("id"), req.Action, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "inventory updated successfully", newGroceryResponse(*item))
}

func (h *HTTPHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if !h.bind(c, &req) {
		return
	}

	lines := make([]domain.LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		// a non-integral quantity is reported by the validator as INVALID_QUANTITY
		qty, _ := toInt(it.Quantity)
		lines = append(lines, domain.LineRequest{ItemID: it.ItemID, Quantity: qty})
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), domain.PlaceOrderRequest{
		UserID:    identityFrom(c).UserID,
		RequestID: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		Lines:     lines,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, "order placed successfully", newOrderResponse(*order))
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	h.ok(c, http.StatusOK, "orders fetched successfully", out)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "order fetched successfully", newOrderResponse(*order))
}

func (h *HTTPHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, domain.NewValidationError("body", "invalid request body"))
		return false
	}
	return true
}

func (h *HTTPHandler) queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		h.fail(c, domain.NewValidationError(name, name+" must be an integer"))
		return 0, false
	}
	return v, true
}

func (h *HTTPHandler) ok(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	de := toDomainError(err)
	if de.Code == domain.CodeTransaction {
		h.logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(httpStatus(de.Code), Response{
		Success: false,
		Message: de.Message,
		Code:    string(de.Code),
		ItemID:  de.ItemID,
		Field:   de.Field,
	})
}
