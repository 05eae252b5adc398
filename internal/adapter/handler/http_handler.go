package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const purchaseCreatedMessage = "purchase created successfully"

type InventoryService interface {
	GetByProduct(ctx context.Context, productID int64) (domain.InventoryWithProduct, error)
	SetQuantity(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error)
}

type PurchaseService interface {
	ProcessPurchase(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error)
}

// ReadinessFunc reports whether the backing store can serve requests.
type ReadinessFunc func(ctx context.Context) error

type SetInventoryRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type PurchaseHTTPRequest struct {
	ProductID *int64 `json:"productId" validate:"required"`
	Quantity  *int   `json:"quantity" validate:"required"`
}

type InventoryResponse struct {
	ProductID   int64   `json:"productId"`
	Quantity    int     `json:"quantity"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type SetInventoryResponse struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type PurchaseHTTPResponse struct {
	ID        string    `json:"id"`
	ProductID int64     `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	Message   string    `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HTTPHandler struct {
	inventory InventoryService
	purchases PurchaseService
	readiness ReadinessFunc
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewHTTPHandler(inventory InventoryService, purchases PurchaseService, readiness ReadinessFunc, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		inventory: inventory,
		purchases: purchases,
		readiness: readiness,
		validate:  validator.New(),
		logger:    logger.Named("http"),
	}
}

// NewRouter wires the inventory, purchase and health routes.
func NewRouter(h *HTTPHandler) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(h.logRequests)

	router.Route("/inventory", func(r chi.Router) {
		r.Get("/{productId}", h.GetInventory)
		r.Put("/{productId}", h.SetInventory)
	})
	router.Post("/purchase", h.Purchase)
	router.Get("/health", h.HealthCheck)

	return router
}

func (h *HTTPHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.inventory.GetByProduct(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, InventoryResponse{
		ProductID:   productID,
		Quantity:    view.Inventory.Quantity,
		Name:        view.Product.Name,
		Price:       view.Product.Price,
		Description: view.Product.Description,
	})
}

func (h *HTTPHandler) SetInventory(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}

	var req SetInventoryRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.inventory.SetQuantity(r.Context(), productID, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SetInventoryResponse{ProductID: rec.ProductID, Quantity: rec.Quantity})
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.purchases.ProcessPurchase(r.Context(), *req.ProductID, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PurchaseHTTPResponse{
		ID:        rec.ID,
		ProductID: rec.ProductID,
		Quantity:  rec.Quantity,
		CreatedAt: rec.CreatedAt,
		Message:   purchaseCreatedMessage,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil {
		if err := h.readiness(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "productId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "product id must be an integer"})
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing required fields"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
