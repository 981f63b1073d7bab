// Package app wires the storefront services, handlers and servers together.
package app

import (
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/order"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/internal/user"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

const ServiceName = "storefront"

type Dependencies struct {
	Sessions *session.Manager
	Catalog  *catalog.Service
	Orders   *order.Service
	Users    *user.Service
	Handler  *rest.Handler
	Logger   *slog.Logger
}

func SetupDependencies(infra *Infra, cfg *config.Config, logger *slog.Logger) *Dependencies {
	sessions := session.NewManager(infra.Sessions, cfg.Session, logger)
	catalogSvc := catalog.NewService(infra.Docs, infra.Blobs, cfg.Blob.PathPrefix, logger)
	orderSvc := order.NewService(infra.Docs, infra.Publisher, logger)
	userSvc := user.NewService(infra.Docs)

	handler := rest.NewHandler(rest.Deps{
		Sessions: sessions,
		Catalog:  catalogSvc,
		Orders:   orderSvc,
		Checkout: checkout.NewWorkflow(orderSvc, logger),
		Identity: infra.Identity,
		Users:    userSvc,
		Blobs:    infra.Blobs,
		Verifier: infra.Verifier,
	}, cfg.Session.CookieSecure, cfg.Session.TTL, cfg.Blob.MaxSizeBytes, logger)

	return &Dependencies{
		Sessions: sessions,
		Catalog:  catalogSvc,
		Orders:   orderSvc,
		Users:    userSvc,
		Handler:  handler,
		Logger:   logger,
	}
}

// SetupHttpHandler builds the router with the storefront routes.
// metrics may be nil; otherwise it is served on /metrics.
// Used by E2E tests to run the application in an httptest server.
func SetupHttpHandler(deps *Dependencies, metrics http.Handler) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps, metrics)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies, metrics http.Handler) {
	deps.Handler.RegisterRoutes(mux)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
}

// SetupHttpServer creates and configures the HTTP server of the storefront.
func SetupHttpServer(deps *Dependencies, cfg *config.Config, metrics http.Handler) *http.Server {
	mux := SetupHttpHandler(deps, metrics)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, ServiceName, mux)
}

// SetupGrpcServer creates the gRPC server that answers health checks.
func SetupGrpcServer(hs *health.Server, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(reflectionEnabled, server.WithHealth(hs))
}
