package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Position(ctx context.Context, marketID, trader string) (domain.Position, error)
	TraderPositions(ctx context.Context, trader string) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// GetPositions returns a trader's position on one market, or all of the
// trader's positions when market_id is omitted.
// GET /api/positions?trader=0x...&market_id=...
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	trader := q.Get("trader")
	if trader == "" {
		writeError(w, http.StatusBadRequest, "trader query parameter required")
		return
	}

	if marketID := q.Get("market_id"); marketID != "" {
		pos, err := h.positions.Position(r.Context(), marketID, trader)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
		return
	}

	positions, err := h.positions.TraderPositions(r.Context(), trader)
	if err != nil {
		if isInternal(err) {
			h.logger.ErrorContext(r.Context(), "handler: list positions failed",
				slog.String("trader", trader),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}
