package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tealwick/storefront/internal/catalog"
	"github.com/tealwick/storefront/internal/checkout"
	"github.com/tealwick/storefront/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code      string                  `json:"code"`
	Message   string                  `json:"message"`
	Fields    map[string]string       `json:"fields,omitempty"`
	Conflicts []catalog.StockConflict `json:"conflicts,omitempty"`
}

var kindStatus = map[store.Kind]int{
	store.KindBadRequest:   http.StatusBadRequest,
	store.KindUnauthorized: http.StatusUnauthorized,
	store.KindForbidden:    http.StatusForbidden,
	store.KindNotFound:     http.StatusNotFound,
	store.KindConflict:     http.StatusConflict,
	store.KindInvalidToken: http.StatusUnauthorized,
	store.KindInternal:     http.StatusInternalServerError,
}

// writeError maps classified errors to stable machine-readable codes.
// Anything unclassified is logged and surfaces as an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	kind := store.KindOf(err)
	body := errorBody{Code: string(kind)}

	var se *store.Error
	if kind != store.KindInternal && errors.As(err, &se) {
		body.Message = se.Message
		body.Fields = se.Fields
	} else {
		body.Message = "internal error"
		log.Printf("internal error: %v", err)
	}

	var stockErr *checkout.StockError
	if errors.As(err, &stockErr) {
		body.Conflicts = stockErr.Conflicts
	}

	writeJSON(w, kindStatus[kind], map[string]errorBody{"error": body})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, store.Wrap(store.KindBadRequest, "invalid json", err))
		return false
	}
	return true
}
