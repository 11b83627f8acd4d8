package accounts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bestshop/bestshop/internal/platform/httpx"
	"github.com/bestshop/bestshop/internal/shared"
)

// OutcomeRecorder counts credential flow results for observability.
type OutcomeRecorder interface {
	RecordAuthOutcome(flow, outcome string)
}

// Handler wires HTTP endpoints for the credential lifecycle flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	metrics        OutcomeRecorder
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, metrics OutcomeRecorder) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		metrics:        metrics,
	}
}

func (h *Handler) record(flow, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordAuthOutcome(flow, outcome)
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password", h.handleResetPassword)
	r.Get("/verify-email", h.handleVerifyEmail)
	r.Get("/session", h.handleSession)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if _, err := h.service.Register(r.Context(), in); err != nil {
		h.record("register", outcomeLabel(err))
		h.respondError(w, r, "register", err)
		return
	}
	h.record("register", "success")
	httpx.JSON(w, http.StatusCreated, map[string]string{
		"message": "Account created successfully! Please check your email to verify your account.",
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	user, err := h.service.Login(r.Context(), in)
	if err != nil {
		h.record("login", outcomeLabel(err))
		h.respondError(w, r, "login", err)
		return
	}
	h.record("login", "success")

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	// Rotate the session ID across the privilege change so a cookie planted
	// before login cannot name the authenticated session.
	sess.RenewID()
	sess.SetIdentity(SessionIdentity(user))

	httpx.JSON(w, http.StatusOK, map[string]string{
		"message": "login successful",
		"role":    string(user.Role),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	msg, err := h.service.RequestReset(r.Context(), in.Email)
	if err != nil {
		h.record("reset_request", outcomeLabel(err))
		h.respondError(w, r, "forgot password", err)
		return
	}
	// Unknown emails land here too and count as success.
	h.record("reset_request", "success")
	httpx.JSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in RedeemResetInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.service.RedeemReset(r.Context(), in); err != nil {
		h.record("reset", outcomeLabel(err))
		h.respondError(w, r, "reset password", err)
		return
	}
	h.record("reset", "success")
	httpx.JSON(w, http.StatusOK, map[string]string{
		"message": "Password updated successfully! You can now log in.",
	})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	tok := r.URL.Query().Get("token")
	if err := h.service.VerifyEmail(r.Context(), email, tok); err != nil {
		h.record("verify", outcomeLabel(err))
		h.respondError(w, r, "verify email", err)
		return
	}
	h.record("verify", "success")
	httpx.JSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully! You can now log in.",
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	resp := map[string]any{
		"authenticated": sess.Identity() != nil,
		"csrf_token":    csrfToken,
	}
	if id := sess.Identity(); id != nil {
		resp["identity"] = id
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// respondError logs infrastructure failures with full detail and answers the
// client with the generic mapping only.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, shared.ErrStoreUnavailable) || errors.Is(err, shared.ErrNotifierUnavailable) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return "validation_failed"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, shared.ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, shared.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, shared.ErrTokenConsumed):
		return "token_consumed"
	case errors.Is(err, shared.ErrTokenNotFound), errors.Is(err, shared.ErrTokenMismatch):
		return "token_invalid"
	case errors.Is(err, shared.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, shared.ErrNotifierUnavailable):
		return "notifier_unavailable"
	default:
		return "error"
	}
}
