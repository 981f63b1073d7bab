package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Nerzal/gocloak/v13"
	"github.com/abgdnv/storefront/internal/blob"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/database"
	"github.com/abgdnv/storefront/internal/docstore"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	pkgnats "github.com/abgdnv/storefront/pkg/nats"
	"github.com/nats-io/nats.go/jetstream"
)

// Infra is the set of external resources the storefront runs on.
type Infra struct {
	Docs      docstore.Store
	Blobs     blob.Store
	Sessions  session.Storage
	Identity  identity.Provider
	Verifier  auth.Verifier
	Publisher messaging.Publisher
	// JetStream is nil when NATS is disabled.
	JetStream jetstream.JetStream

	closers []func()
}

// Close releases the resources in reverse order of acquisition.
func (i *Infra) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

// OpenInfra connects to every configured backend. On error the resources opened so far are released.
func OpenInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infra, error) {
	infra := &Infra{}
	if err := infra.openStores(ctx, cfg, logger); err != nil {
		infra.Close()
		return nil, err
	}
	if err := infra.openSessions(ctx, cfg, logger); err != nil {
		infra.Close()
		return nil, err
	}
	if err := infra.openIdentity(ctx, cfg, logger); err != nil {
		infra.Close()
		return nil, err
	}
	if err := infra.openMessaging(ctx, cfg, logger); err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

func (i *Infra) openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var raw docstore.Store
	switch cfg.Database.Driver {
	case pkgconfig.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		i.closers = append(i.closers, func() { _ = db.Close() })
		raw = docstore.NewSQLStore(db)
		i.Blobs = blob.NewSQLStore(db, cfg.Blob.PublicBaseURL, cfg.Blob.MaxSizeBytes)
	default:
		if err := database.MigratePostgres(cfg.Database.URL); err != nil {
			return err
		}
		pool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return err
		}
		i.closers = append(i.closers, pool.Close)
		raw = docstore.NewPgStore(pool)
		i.Blobs = blob.NewPgStore(pool, cfg.Blob.PublicBaseURL, cfg.Blob.MaxSizeBytes)
	}
	i.Docs = docstore.WithBreaker(raw, "docstore", cfg.CircuitBreaker)
	logger.Info("Document store ready", "driver", cfg.Database.Driver)
	return nil
}

func (i *Infra) openSessions(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Session.Store != pkgconfig.SessionStoreRedis {
		i.Sessions = session.NewMemoryStorage(cfg.Session.TTL)
		logger.Warn("Sessions are kept in memory and will not survive a restart")
		return nil
	}
	client, err := bootstrap.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, func() { _ = client.Close() })
	i.Sessions = session.NewRedisStorage(client, cfg.Session.TTL)
	logger.Info("Session storage ready", "store", "redis", "addr", cfg.Redis.Addr)
	return nil
}

func (i *Infra) openIdentity(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	verifyCtx, cancel := context.WithTimeout(ctx, cfg.IdP.Timeout)
	defer cancel()
	verifier, err := auth.NewJWTVerifier(verifyCtx, cfg.IdP)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}
	client := gocloak.NewClient(cfg.IdP.BaseURL)
	client.RestyClient().SetTimeout(cfg.IdP.Timeout)
	i.Verifier = verifier
	i.Identity = identity.NewKeycloakProvider(client, verifier, cfg.IdP.Realm, cfg.IdP.ClientID, cfg.IdP.ClientSecret, logger)
	return nil
}

func (i *Infra) openMessaging(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Nats.Enabled {
		i.Publisher = messaging.DiscardPublisher{}
		logger.Warn("NATS is disabled, order events are not published")
		return nil
	}
	nc, err := pkgnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, func() { _ = nc.Drain() })
	js, err := pkgnats.NewJetStreamContext(nc)
	if err != nil {
		return err
	}
	if err := pkgnats.EnsureStream(ctx, js, cfg.Subscriber.Stream, cfg.Subscriber.Subjects); err != nil {
		return err
	}
	i.JetStream = js
	i.Publisher = pkgnats.NewNatsPublisher(js)
	logger.Info("Connected to NATS", "url", cfg.Nats.Url, "stream", cfg.Subscriber.Stream)
	return nil
}
