package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tealwick/storefront/internal/auth"
	"github.com/tealwick/storefront/internal/catalog"
	"github.com/tealwick/storefront/internal/store"
)

type ProductsHandler struct {
	Catalog *catalog.Repo
	Signer  *auth.AccessSigner
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.Signer), RequireRole(auth.RoleAdmin))
			r.Patch("/admin/{id}/stock", h.restock)
		})
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r, 3*time.Second)
	defer cancel()
	items, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]catalog.Product{"items": items})
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeout(r, 3*time.Second)
	defer cancel()
	p, err := h.Catalog.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*catalog.Product{"item": p})
}

type restockReq struct {
	Quantity int `json:"quantity"`
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		writeError(w, store.New(store.KindBadRequest, "quantity must be positive"))
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	p, err := h.Catalog.Restock(ctx, chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*catalog.Product{"item": p})
}
