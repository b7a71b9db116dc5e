package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain sentinel error to an HTTP status and writes
// it. Unknown errors become an opaque 500 so internals never leak.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrNotOrderOwner),
		errors.Is(err, domain.ErrNotAdmin),
		errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrInvalidDeadline),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrOrderTooSmall),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInsufficientDeposit),
		errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMarketResolved),
		errors.Is(err, domain.ErrMarketExpired),
		errors.Is(err, domain.ErrMarketNotExpired),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrNotResolved),
		errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrFullyFilled),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrNoWinningPosition),
		errors.Is(err, domain.ErrNotYetAnswered):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// isInternal reports whether writeDomainError would respond with a 500, in
// which case the handler should log the underlying error.
func isInternal(err error) bool {
	for _, sentinel := range []error{
		domain.ErrNotFound, domain.ErrRateLimited,
		domain.ErrNotOrderOwner, domain.ErrNotAdmin, domain.ErrUnauthorized,
		domain.ErrEmptyQuestion, domain.ErrInvalidDeadline, domain.ErrInvalidPrice,
		domain.ErrInvalidSide, domain.ErrInvalidOutcome,
		domain.ErrOrderTooSmall, domain.ErrInvalidAddress,
		domain.ErrInsufficientDeposit, domain.ErrInsufficientFunds,
		domain.ErrMarketResolved, domain.ErrMarketExpired, domain.ErrMarketNotExpired,
		domain.ErrAlreadyResolved, domain.ErrNotResolved, domain.ErrAlreadyCancelled,
		domain.ErrFullyFilled, domain.ErrAlreadyClaimed, domain.ErrNoWinningPosition,
		domain.ErrNotYetAnswered,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseOutcome reads the required "outcome" query parameter.
func parseOutcome(r *http.Request) (domain.Outcome, bool) {
	o := domain.Outcome(r.URL.Query().Get("outcome"))
	if !o.Valid() {
		return "", false
	}
	return o, true
}
