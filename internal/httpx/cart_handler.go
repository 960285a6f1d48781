package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tealwick/storefront/internal/auth"
	"github.com/tealwick/storefront/internal/cart"
	"github.com/tealwick/storefront/internal/store"
)

const sessionHeader = "X-Session-ID"

type CartHandler struct {
	Carts  *cart.Service
	Signer *auth.AccessSigner
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/guest", h.getGuestCart)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.Signer))
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addItem)
			r.Put("/items/{itemID}", h.updateItem)
			r.Delete("/items/{itemID}", h.removeItem)
			r.Post("/sync", h.syncCart)
			r.Post("/merge-guest", h.mergeGuest)
		})
	})
}

func (h *CartHandler) identity(r *http.Request) (cart.Identity, error) {
	p, ok := principalFrom(r.Context())
	if !ok {
		return cart.Identity{}, store.New(store.KindUnauthorized, "unauthorized")
	}
	return cart.Identity{UserID: p.UserID}, nil
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := timeout(r, 3*time.Second)
	defer cancel()
	c, err := h.Carts.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*cart.Cart{"cart": c})
}

func (h *CartHandler) getGuestCart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		writeError(w, store.New(store.KindBadRequest, "missing X-Session-ID header"))
		return
	}
	ctx, cancel := timeout(r, 3*time.Second)
	defer cancel()
	c, err := h.Carts.Get(ctx, cart.Identity{SessionID: sessionID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*cart.Cart{"cart": c})
}

type addItemReq struct {
	Item cart.Item `json:"item"`
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addItemReq
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	c, err := h.Carts.AddItem(ctx, id, req.Item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c, "item": map[string]string{"id": req.Item.ID}})
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateItemReq
	if !decodeBody(w, r, &req) {
		return
	}
	itemID := chi.URLParam(r, "itemID")

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	c, err := h.Carts.UpdateQuantity(ctx, id, itemID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cart": c,
		"item": map[string]any{"id": itemID, "quantity": req.Quantity},
	})
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	itemID := chi.URLParam(r, "itemID")

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	c, err := h.Carts.RemoveItem(ctx, id, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c, "removedItemId": itemID})
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	c, err := h.Carts.Clear(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*cart.Cart{"cart": c})
}

type syncReq struct {
	LocalCart     []cart.Item `json:"localCart"`
	MergeStrategy string      `json:"mergeStrategy,omitempty"`
}

func (h *CartHandler) syncCart(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req syncReq
	if !decodeBody(w, r, &req) {
		return
	}
	strategy, err := cart.ParseStrategy(req.MergeStrategy)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	c, conflicts, err := h.Carts.Sync(ctx, id, req.LocalCart, strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"cart": c, "syncedAt": c.LastSyncedAt}
	if len(conflicts) > 0 {
		resp["conflicts"] = conflicts
	}
	writeJSON(w, http.StatusOK, resp)
}

type mergeGuestReq struct {
	GuestCart []cart.Item `json:"guestCart"`
}

func (h *CartHandler) mergeGuest(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req mergeGuestReq
	if !decodeBody(w, r, &req) {
		return
	}
	sessionID := r.Header.Get(sessionHeader)

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	c, added, err := h.Carts.MergeGuest(ctx, id.UserID, req.GuestCart, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c, "mergedItems": added})
}
