package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tealwick/storefront/internal/auth"
	"github.com/tealwick/storefront/internal/store"
)

type AuthHandler struct {
	Auth   *auth.Service
	Signer *auth.AccessSigner
}

func (h *AuthHandler) Register(r *chi.Mux) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.With(RequireAuth(h.Signer)).Get("/me", h.me)
	})
}

type registerReq struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Phone      string `json:"phone,omitempty"`
	Newsletter bool   `json:"newsletter,omitempty"`
}

type authResp struct {
	User         *auth.User `json:"user,omitempty"`
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if !decodeBody(w, r, &req) {
		return
	}
	fields := map[string]string{}
	if !strings.Contains(req.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if len(req.Password) < 8 || len(req.Password) > 200 {
		fields["password"] = "must be 8-200 characters"
	}
	if req.FirstName == "" {
		fields["firstName"] = "required"
	}
	if req.LastName == "" {
		fields["lastName"] = "required"
	}
	if len(fields) > 0 {
		writeError(w, store.Invalid("invalid registration", fields))
		return
	}

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	u, pair, err := h.Auth.Register(ctx, auth.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Newsletter: req.Newsletter,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResp{User: u, Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, store.New(store.KindBadRequest, "email and password required"))
		return
	}

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	u, pair, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResp{User: u, Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.RefreshToken) < 10 {
		writeError(w, store.New(store.KindBadRequest, "refreshToken required"))
		return
	}

	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	_, pair, err := h.Auth.Rotate(ctx, req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResp{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// logout always reports success so callers cannot probe chain state.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	if err := h.Auth.RevokeSecret(ctx, req.RefreshToken); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, store.New(store.KindUnauthorized, "unauthorized"))
		return
	}
	ctx, cancel := timeout(r, 3*time.Second)
	defer cancel()
	u, err := h.Auth.Users.GetByID(ctx, p.UserID)
	if err != nil {
		writeError(w, store.New(store.KindUnauthorized, "unauthorized"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]*auth.User{"user": u})
}

type forgotReq struct {
	Email string `json:"email"`
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotReq
	if !decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	// identical response either way, no account enumeration
	if _, err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetReq
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Token) < 10 || len(req.NewPassword) < 8 {
		writeError(w, store.New(store.KindBadRequest, "invalid reset request"))
		return
	}
	ctx, cancel := timeout(r, 5*time.Second)
	defer cancel()
	if err := h.Auth.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func timeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
