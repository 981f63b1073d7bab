// Package main runs the storefront: REST API, gRPC health, session sweeper and order notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/notification"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/abgdnv/storefront/pkg/telemetry"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, connects the backends and serves until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](app.ServiceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Telemetry.Traces.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, app.ServiceName, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		shutdownTracing = tp.Shutdown
	}
	meterProvider, metricsHandler, err := telemetry.NewMeterProvider(app.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}

	infra, err := app.OpenInfra(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open infrastructure: %w", err)
	}
	defer infra.Close()

	deps := app.SetupDependencies(infra, cfg, logger)
	httpServer := app.SetupHttpServer(deps, cfg, metricsHandler)
	pprofServer := &http.Server{Addr: cfg.PProf.Addr}
	grpcHealth := health.NewServer()
	grpcServer := app.SetupGrpcServer(grpcHealth, cfg.GrpcServer.ReflectionEnabled)

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.GrpcServer.Enabled {
		g.Go(func() error {
			grpcAddr := ":" + cfg.GrpcServer.Port
			lis, err := net.Listen("tcp", grpcAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on gRPC port: %w", err)
			}
			grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
			logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
			return grpcServer.Serve(lis)
		})
		// gracefully shutdown gRPC server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down gRPC server...")
			grpcHealth.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				grpcHealth.Shutdown()
				close(stopped)
			}()
			select {
			case <-stopped:
				logger.Info("gRPC server stopped gracefully.")
				return nil
			case <-time.After(cfg.Shutdown.Timeout):
				logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
				grpcServer.Stop()
				return fmt.Errorf("grpc server graceful stop timed out")
			}
		})
	}

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	// Evict idle sessions
	g.Go(func() error {
		return deps.Sessions.Run(gCtx)
	})

	// Consume order events
	if infra.JetStream != nil {
		g.Go(func() error {
			return notification.Start(gCtx, infra.JetStream, cfg.Subscriber, logger)
		})
	}

	// flush telemetry
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down telemetry providers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}
