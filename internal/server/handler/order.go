package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/engine"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, p engine.PlaceOrderParams) (domain.Order, []domain.Trade, error)
	CancelOrder(ctx context.Context, marketID, orderID, caller string) (domain.Order, error)
	Order(ctx context.Context, marketID, orderID string) (domain.Order, error)
	TraderOrders(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// placeOrderRequest is the body for order placement.
type placeOrderRequest struct {
	MarketID string `json:"market_id"`
	Trader   string `json:"trader"`
	Side     string `json:"side"`
	Outcome  string `json:"outcome"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// placeOrderResponse returns the stored order together with its fills.
type placeOrderResponse struct {
	Order  domain.Order   `json:"order"`
	Trades []domain.Trade `json:"trades"`
}

// PlaceOrder places a limit order and runs it through matching.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" || req.Trader == "" {
		writeError(w, http.StatusBadRequest, "market_id and trader are required")
		return
	}

	order, trades, err := h.orders.PlaceOrder(r.Context(), engine.PlaceOrderParams{
		MarketID: req.MarketID,
		Trader:   req.Trader,
		Side:     domain.Side(req.Side),
		Outcome:  domain.Outcome(req.Outcome),
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("market_id", req.MarketID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusCreated, placeOrderResponse{Order: order, Trades: trades})
}

// cancelOrderRequest is the body for order cancellation.
type cancelOrderRequest struct {
	Caller string `json:"caller"`
}

// CancelOrder cancels an order and refunds its remaining escrow.
// DELETE /api/orders/{id}?market_id=...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	marketID := r.URL.Query().Get("market_id")
	if id == "" || marketID == "" {
		writeError(w, http.StatusBadRequest, "order id and market_id are required")
		return
	}

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), marketID, id, req.Caller)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// GetOrder returns one order.
// GET /api/orders/{id}?market_id=...
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	marketID := r.URL.Query().Get("market_id")
	if id == "" || marketID == "" {
		writeError(w, http.StatusBadRequest, "order id and market_id are required")
		return
	}

	order, err := h.orders.Order(r.Context(), marketID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns a trader's orders across markets.
// GET /api/orders?trader=0x...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	trader := r.URL.Query().Get("trader")
	if trader == "" {
		writeError(w, http.StatusBadRequest, "trader query parameter required")
		return
	}

	orders, err := h.orders.TraderOrders(r.Context(), trader, parseListOpts(r))
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: list orders failed",
				slog.String("trader", trader),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}
