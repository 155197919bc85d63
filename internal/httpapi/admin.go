package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"cod-order-service/internal/store"
)

func (s *server) handleListCarts(w http.ResponseWriter, r *http.Request) {
	shop := ShopFromContext(r.Context())
	q := r.URL.Query()
	limit := intParam(r, "limit", store.DefaultPageSize, 1, 200)
	onlyOpen := q.Get("open") == "1" || q.Get("open") == "true"

	page, err := s.carts.ListAbandoned(r.Context(), shop, q.Get("cursor"), limit, onlyOpen)
	if errors.Is(err, store.ErrInvalidCursor) {
		writeJSON(w, http.StatusBadRequest, failure{Error: "validation_failed", Code: "invalid_cursor", Reason: "cursor is malformed"})
		return
	}
	if err != nil {
		s.internalError(w, r, "listing abandoned carts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func intParam(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
