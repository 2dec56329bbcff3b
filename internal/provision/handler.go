package provision

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caremesh/caremesh/internal/platform/httpx"
)

// actorHeader carries the acting subject id, set by the session-owning
// front end after it authenticates the request. Session mechanics live
// outside this service.
const actorHeader = "X-Actor-Subject"

// Handler wires HTTP endpoints for account provisioning.
type Handler struct {
	logger      *slog.Logger
	provisioner *Provisioner
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, provisioner *Provisioner) *Handler {
	return &Handler{logger: logger, provisioner: provisioner}
}

// MountRoutes registers provisioning routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/residents", h.handleProvisionResident)
	r.Post("/residents/activate", h.handleActivateResident)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegistrationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	result, err := h.provisioner.Register(r.Context(), in)
	if err != nil {
		h.respondProvisionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"profile": result.Profile.SessionClaims(),
		"message": result.Message,
	})
}

func (h *Handler) handleProvisionResident(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var in ResidentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	created, err := h.provisioner.ProvisionResident(r.Context(), in, actor)
	if err != nil {
		h.respondProvisionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created.SessionClaims())
}

type activateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleActivateResident(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	activated, err := h.provisioner.ActivateResident(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondProvisionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, activated.SessionClaims())
}

func (h *Handler) respondProvisionError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", vErr.Field+": "+vErr.Message)
	case errors.Is(err, ErrEmailInUse), errors.Is(err, ErrLeaseHeld):
		httpx.Problem(w, http.StatusConflict, "Conflict", "email already in use")
	case errors.Is(err, ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not permitted to create users")
	case errors.Is(err, ErrNotProvisioned):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no provisioned account for this email")
	default:
		h.logger.Error("provision", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
