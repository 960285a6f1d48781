package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tealwick/storefront/internal/auth"
	"github.com/tealwick/storefront/internal/checkout"
	"github.com/tealwick/storefront/internal/store"
)

type OrdersHandler struct {
	Checkout *checkout.Service
	Signer   *auth.AccessSigner
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Route("/orders", func(r chi.Router) {
		// guest checkout is allowed, so auth is optional here
		r.With(OptionalAuth(h.Signer)).Post("/", h.createOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.Signer))
			r.Get("/my", h.listMine)
			r.Get("/{id}", h.getOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(auth.RoleAdmin, auth.RoleModerator))
				r.Get("/list", h.adminList)
				r.Patch("/{id}", h.adminUpdate)
			})
		})
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var payload checkout.Payload
	if !decodeBody(w, r, &payload) {
		return
	}
	var userID string
	if p, ok := principalFrom(r.Context()); ok {
		userID = p.UserID
	}

	ctx, cancel := timeout(r, 10*time.Second)
	defer cancel()
	o, err := h.Checkout.Place(ctx, userID, middleware.GetReqID(r.Context()), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*checkout.Order{"item": o})
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, store.New(store.KindUnauthorized, "unauthorized"))
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	items, err := h.Checkout.ListMine(ctx, p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]checkout.Order{"items": items})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, store.New(store.KindUnauthorized, "unauthorized"))
		return
	}
	ctx, cancel := timeout(r, 3*time.Second)
	defer cancel()
	o, err := h.Checkout.Get(ctx, chi.URLParam(r, "id"), p.UserID, p.Role.CanManage())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*checkout.Order{"item": o})
}

func (h *OrdersHandler) adminList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	items, total, err := h.Checkout.AdminList(ctx, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	totalPages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items, "page": page, "limit": limit, "total": total, "totalPages": totalPages,
	})
}

func (h *OrdersHandler) adminUpdate(w http.ResponseWriter, r *http.Request) {
	var upd checkout.AdminUpdate
	if !decodeBody(w, r, &upd) {
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	o, err := h.Checkout.AdminUpdateOrder(ctx, chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*checkout.Order{"item": o})
}
