// Command identity-server issues and rotates the fleet's access and refresh tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/cigarclub/identity/internal/config"
	"github.com/cigarclub/identity/internal/crypto"
	grpcserver "github.com/cigarclub/identity/internal/server/grpc"
	httpserver "github.com/cigarclub/identity/internal/server/http"
	"github.com/cigarclub/identity/internal/service"
	"github.com/cigarclub/identity/internal/storage"
	"github.com/cigarclub/identity/internal/telemetry"
	"github.com/cigarclub/identity/internal/token"
	"github.com/cigarclub/identity/internal/verifier"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownGrace = 5 * time.Second

// main loads configuration, runs migrations, and serves HTTP and gRPC until signalled.
func main() {
	cfg, err := config.Load(os.Args[1:], nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	var logger *zap.Logger
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("store", cfg.StoreDriver),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "identity", version, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	st, err := storage.Open(ctx, cfg, logger.Named("store"))
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close", zap.Error(err))
		}
	}()

	signer, err := token.NewSigner(cfg.Token())
	if err != nil {
		logger.Fatal("token signer", zap.Error(err))
	}

	sessions, err := service.NewSessionService(
		st.Accounts, st.Tokens, crypto.NewHasher(cfg.BcryptCost), signer, st.Limiter,
		logger.Named("session"),
		service.SessionConfig{RefreshTTL: cfg.RefreshTTL, RequestTimeout: cfg.RequestTimeout},
	)
	if err != nil {
		logger.Fatal("session service", zap.Error(err))
	}
	accounts := service.NewAccountService(st.Accounts, logger.Named("accounts"))
	v := verifier.New(signer)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Sessions: sessions,
			Accounts: accounts,
			Verifier: v,
			Health:   st.Ping,
			Log:      logger.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		var err error
		if cfg.TLSCert != "" {
			logger.Info("http listening (TLS)", zap.String("addr", cfg.HTTPAddr))
			err = httpSrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		var opts []grpc.ServerOption
		if cfg.TLSCert != "" {
			creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				logger.Fatal("failed to load TLS cert/key", zap.Error(err))
			}
			opts = append(opts, grpc.Creds(creds))
		}
		srv, hs := grpcserver.New(logger.Named("grpc"), v, opts...)
		grpcSrv = srv
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if cfg.Dev {
			reflection.Register(grpcSrv)
		}

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			errCh <- grpcSrv.Serve(lis)
		}()
		defer hs.Shutdown()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			grpcSrv.Stop()
		}
	}

	logger.Info("shutdown complete")
}
