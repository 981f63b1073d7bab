package rest

import (
	"errors"
	"net/http"

	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/pkg/web"
)

type loginDto struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type identityView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func newIdentityView(id *identity.Identity) identityView {
	return identityView{ID: id.ID, Email: id.Email, Name: id.Name}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	var dto identity.RegisterDto
	if !web.DecodeJSON(w, r, log, &dto) {
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		web.RespondValidation(w, r, log, err)
		return
	}
	id, err := h.Identity.Register(r.Context(), dto)
	switch {
	case errors.Is(err, identity.ErrUserAlreadyExists):
		web.RespondError(w, log, http.StatusConflict, "User already exists")
	case errors.Is(err, identity.ErrInvalidUserData):
		web.RespondError(w, log, http.StatusBadRequest, "Invalid user data")
	case err != nil:
		log.ErrorContext(r.Context(), "Registration failed", "error", err)
		web.RespondError(w, log, http.StatusBadGateway, "Registration is unavailable")
	default:
		log.InfoContext(r.Context(), "User registered", "user_id", id)
		web.RespondJSON(w, log, http.StatusCreated, map[string]string{"id": id})
	}
}

// Login signs the session in. The user profile is created on first sign-in.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	var dto loginDto
	if !web.DecodeJSON(w, r, log, &dto) {
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		web.RespondValidation(w, r, log, err)
		return
	}
	id, err := h.Identity.SignIn(r.Context(), dto.Username, dto.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		web.RespondError(w, log, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		log.ErrorContext(r.Context(), "Sign-in failed", "error", err)
		web.RespondError(w, log, http.StatusBadGateway, "Sign-in is unavailable")
		return
	}

	sessionFrom(r.Context()).SetIdentity(r.Context(), id)
	if _, err := h.Users.CreateIfMissing(r.Context(), *id); err != nil {
		log.WarnContext(r.Context(), "Failed to ensure user profile", "user_id", id.ID, "error", err)
	}
	log.InfoContext(r.Context(), "User signed in", "user_id", id.ID)
	web.RespondJSON(w, log, http.StatusOK, newIdentityView(id))
}

// Logout signs the session out. The cart is kept.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	sess := sessionFrom(r.Context())
	if id := sess.Identity(); id != nil {
		if err := h.Identity.SignOut(r.Context(), id); err != nil {
			log.WarnContext(r.Context(), "Failed to end provider session", "user_id", id.ID, "error", err)
		}
		sess.ClearIdentity(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if id == nil {
		h.respondSignIn(w, r)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, newIdentityView(id))
}
