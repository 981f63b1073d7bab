package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/user"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/abgdnv/storefront/pkg/logger"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/google/uuid"
)

const (
	SessionCookie = "sid"
	SessionHeader = "X-Session-Id"

	signInPath = "/login"
)

type sessionKey struct{}
type identityKey struct{}

// SessionMiddleware resolves the browsing session from the sid cookie or the
// X-Session-Id header, opening a new one when neither carries a valid id.
// The id is echoed in both.
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sessionIDFrom(r)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logger.WithSessionID(r.Context(), id)
		sess := h.Sessions.Get(ctx, id)

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(h.sessionMaxAge.Seconds()),
			HttpOnly: true,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		w.Header().Set(SessionHeader, id)

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, sess)))
	})
}

func sessionIDFrom(r *http.Request) string {
	candidates := []string{r.Header.Get(SessionHeader)}
	if c, err := r.Cookie(SessionCookie); err == nil {
		candidates = append([]string{c.Value}, candidates...)
	}
	for _, c := range candidates {
		if _, err := uuid.Parse(c); err == nil {
			return c
		}
	}
	return ""
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

func identityFrom(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(identityKey{}).(*identity.Identity)
	return id
}

// respondSignIn answers 401 with the place the client should send the user to.
func (h *Handler) respondSignIn(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	web.RespondJSON(w, log, http.StatusUnauthorized, map[string]string{
		"error":    "Sign in required",
		"redirect": signInPath,
	})
}

// ResolveIdentity puts the caller's identity in the request context: the user signed in
// to the session, or else the subject of a verified bearer token. The token identity lives
// for the request only and is never written to the session.
func (h *Handler) ResolveIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sessionFrom(r.Context()).Identity()
		authHeader := r.Header.Get("Authorization")
		if id == nil && authHeader != "" && h.Verifier != nil {
			log := h.logger
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				web.RespondError(w, log, http.StatusUnauthorized, "Bearer token is required")
				return
			}
			token, err := h.Verifier.Verify(r.Context(), tokenString)
			if err != nil {
				log.WarnContext(r.Context(), "Rejected bearer token", "error", err)
				web.RespondError(w, log, http.StatusUnauthorized, "Invalid token")
				return
			}
			claims, err := auth.ClaimsOf(token)
			if err != nil {
				web.RespondError(w, log, http.StatusUnauthorized, "Invalid token")
				return
			}
			id = &identity.Identity{ID: claims.Subject, Email: claims.Email, Name: claims.Name}
		}
		if id != nil {
			r = r.WithContext(context.WithValue(r.Context(), identityKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity rejects anonymous requests.
func (h *Handler) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r.Context()) == nil {
			h.respondSignIn(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin lets through users whose profile is flagged as admin.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := h.logger
		id := identityFrom(r.Context())
		profile, err := h.Users.FindByUID(r.Context(), id.ID)
		if err != nil && !errors.Is(err, user.ErrUserNotFound) {
			respondFailure(w, r, log, "Failed to check permissions", err)
			return
		}
		if profile == nil || !profile.IsAdmin {
			log.WarnContext(r.Context(), "Admin route denied", "user_id", id.ID, "path", r.URL.Path)
			web.RespondError(w, log, http.StatusForbidden, "Access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
