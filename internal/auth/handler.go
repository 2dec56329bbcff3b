package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/caremesh/caremesh/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	gateway   *Gateway
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, gateway *Gateway) *Handler {
	return &Handler{logger: logger, gateway: gateway, validator: validator.New()}
}

// MountRoutes registers auth routes on the provided router. Sign-in is
// rate limited per client IP on top of the global limiter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/auth/login", h.handleLogin)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		// Shape errors map to the same generic response as bad
		// credentials so the endpoint leaks nothing about accounts.
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}

	client := ClientContext{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
	claims, err := h.gateway.Authenticate(r.Context(), req.Email, req.Password, client)
	if err != nil {
		h.respondAuthError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, claims)
}

func (h *Handler) respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	case errors.Is(err, ErrEmailNotVerified):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "please verify your email address before signing in")
	case errors.Is(err, ErrAccountInactive):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "account is inactive or suspended")
	default:
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
