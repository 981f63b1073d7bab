package rest

import (
	"errors"
	"net/http"

	"github.com/abgdnv/storefront/internal/user"
	"github.com/abgdnv/storefront/pkg/web"
)

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	id := identityFrom(r.Context())
	p, err := h.Users.FindByUID(r.Context(), id.ID)
	if errors.Is(err, user.ErrUserNotFound) {
		web.RespondError(w, log, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		respondFailure(w, r, log, "Failed to fetch profile", err)
		return
	}
	web.RespondJSON(w, log, http.StatusOK, p)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	var dto user.UpdateDto
	if !web.DecodeJSON(w, r, log, &dto) {
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		web.RespondValidation(w, r, log, err)
		return
	}
	id := identityFrom(r.Context())
	p, err := h.Users.Update(r.Context(), id.ID, dto)
	if errors.Is(err, user.ErrUserNotFound) {
		web.RespondError(w, log, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		respondFailure(w, r, log, "Failed to update profile", err)
		return
	}
	web.RespondJSON(w, log, http.StatusOK, p)
}
