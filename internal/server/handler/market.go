package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, creator, question string, deadline time.Time) (domain.Market, error)
	Market(ctx context.Context, marketID string) (domain.Market, error)
	Markets(ctx context.Context) []domain.Market
	Resolve(ctx context.Context, marketID string) (domain.Market, error)
	OrderBook(ctx context.Context, marketID string, outcome domain.Outcome) (domain.BookSnapshot, error)
	OpenOrders(ctx context.Context, marketID string, outcome domain.Outcome) (bids, asks []domain.Order, err error)
	MarketPrice(ctx context.Context, marketID string, outcome domain.Outcome) (int64, error)
	Trades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
	Claim(ctx context.Context, marketID, trader string) (int64, error)
	WithdrawFees(ctx context.Context, marketID, caller string) (int64, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the body for market creation.
type createMarketRequest struct {
	Creator  string    `json:"creator"`
	Question string    `json:"question"`
	Deadline time.Time `json:"deadline"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), req.Creator, req.Question, req.Deadline)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int             `json:"total"`
}

// ListMarkets returns all markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.Markets(r.Context())
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   len(markets),
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Market(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// ResolveMarket attempts the oracle-gated resolution of a market.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	market, err := h.markets.Resolve(r.Context(), id)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: resolve market failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetBook returns the order book on one outcome channel.
// GET /api/markets/{id}/book?outcome=yes
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	outcome, ok := parseOutcome(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "outcome query parameter must be yes or no")
		return
	}

	snap, err := h.markets.OrderBook(r.Context(), id, outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// bookOrdersResponse carries the per-order view of one side of a book.
type bookOrdersResponse struct {
	MarketID string         `json:"market_id"`
	Outcome  domain.Outcome `json:"outcome"`
	Bids     []domain.Order `json:"bids"`
	Asks     []domain.Order `json:"asks"`
}

// GetBookOrders returns the individual resting orders behind the book.
// GET /api/markets/{id}/book/orders?outcome=yes
func (h *MarketHandler) GetBookOrders(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	outcome, ok := parseOutcome(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "outcome query parameter must be yes or no")
		return
	}

	bids, asks, err := h.markets.OpenOrders(r.Context(), id, outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookOrdersResponse{
		MarketID: id,
		Outcome:  outcome,
		Bids:     bids,
		Asks:     asks,
	})
}

// GetPrice returns the mid price on one outcome channel.
// GET /api/markets/{id}/price?outcome=yes
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	outcome, ok := parseOutcome(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "outcome query parameter must be yes or no")
		return
	}

	price, err := h.markets.MarketPrice(r.Context(), id, outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"outcome":   outcome,
		"price":     price,
	})
}

// listTradesResponse wraps the trade history response.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns a market's trade history.
// GET /api/markets/{id}/trades?limit=50&offset=0
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	opts := parseListOpts(r)

	trades, err := h.markets.Trades(r.Context(), id, opts)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: list trades failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// claimRequest is the body for claiming winnings.
type claimRequest struct {
	Trader string `json:"trader"`
}

// Claim pays out the caller's winning position on a resolved market.
// POST /api/markets/{id}/claim
func (h *MarketHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	payout, err := h.markets.Claim(r.Context(), id, req.Trader)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: claim failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"payout":    payout,
	})
}

// withdrawFeesRequest is the body for the admin fee withdrawal.
type withdrawFeesRequest struct {
	Caller string `json:"caller"`
}

// WithdrawFees transfers a market's accrued fees to the admin account.
// POST /api/markets/{id}/fees
func (h *MarketHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req withdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, err := h.markets.WithdrawFees(r.Context(), id, req.Caller)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: withdraw fees failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"amount":    amount,
	})
}
