// Package rest exposes the storefront over HTTP.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/storefront/internal/blob"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/docstore"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/order"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/user"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type CatalogService interface {
	ListAll(ctx context.Context) ([]catalog.Product, error)
	ListByCategory(ctx context.Context, category string) ([]catalog.Product, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	FindByID(ctx context.Context, id int64) (*catalog.Product, error)
	Create(ctx context.Context, dto catalog.CreateDto, img catalog.Image) (*catalog.Product, error)
	Update(ctx context.Context, id int64, dto catalog.UpdateDto) (*catalog.Product, error)
	Delete(ctx context.Context, id int64) error
}

type OrderService interface {
	FindByID(ctx context.Context, userID, id string) (*order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
}

type CheckoutService interface {
	Submit(ctx context.Context, id *identity.Identity, store *cart.Store) (checkout.Result, error)
}

type UserService interface {
	CreateIfMissing(ctx context.Context, id identity.Identity) (*user.Profile, error)
	FindByUID(ctx context.Context, uid string) (*user.Profile, error)
	Update(ctx context.Context, uid string, dto user.UpdateDto) (*user.Profile, error)
}

type BlobReader interface {
	Get(ctx context.Context, path string) (blob.Blob, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Sessions *session.Manager
	Catalog  CatalogService
	Orders   OrderService
	Checkout CheckoutService
	Identity identity.Provider
	Users    UserService
	Blobs    BlobReader
	// Verifier authenticates bearer tokens of API clients. Nil disables them.
	Verifier auth.Verifier
}

type Handler struct {
	Deps
	validate *validator.Validate
	logger   *slog.Logger

	cookieSecure   bool
	sessionMaxAge  time.Duration
	maxUploadBytes int64
}

// NewHandler creates the HTTP handlers. sessionTTL sets the session cookie lifetime
// and maxUploadBytes bounds multipart product uploads.
func NewHandler(deps Deps, cookieSecure bool, sessionTTL time.Duration, maxUploadBytes int64, logger *slog.Logger) *Handler {
	return &Handler{
		Deps:           deps,
		validate:       validator.New(),
		logger:         logger.With("component", "rest"),
		cookieSecure:   cookieSecure,
		sessionMaxAge:  sessionTTL,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers the storefront routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HealthCheck)
	r.Get("/blobs/*", h.GetBlob)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/categories", h.ListCategories)

		r.Group(func(r chi.Router) {
			r.Use(h.SessionMiddleware, h.ResolveIdentity)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddCartItem)
				r.Put("/items/{id}", h.SetCartItemQty)
				r.Delete("/items/{id}", h.RemoveCartItem)
			})
			r.Post("/checkout", h.PlaceOrder)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.Me)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.RequireIdentity)
				r.Get("/orders", h.ListOrders)
				r.Get("/orders/{id}", h.GetOrder)
				r.Get("/profile", h.GetProfile)
				r.Put("/profile", h.UpdateProfile)

				r.Group(func(r chi.Router) {
					r.Use(h.RequireAdmin)
					r.Post("/products", h.CreateProduct)
					r.Put("/products/{id}", h.UpdateProduct)
					r.Delete("/products/{id}", h.DeleteProduct)
				})
			})
		})
	})
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondFailure answers an unexpected service error. An open docstore breaker becomes 503.
func respondFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, message string, err error) {
	if errors.Is(err, docstore.ErrUnavailable) {
		logger.WarnContext(r.Context(), message, "error", err)
		web.RespondError(w, logger, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	logger.ErrorContext(r.Context(), message, "error", err)
	web.RespondError(w, logger, http.StatusInternalServerError, message)
}
