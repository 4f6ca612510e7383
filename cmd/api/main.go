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

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"ayrene.com/backoffice/internal/ai"
	"ayrene.com/backoffice/internal/audit"
	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/config"
	"ayrene.com/backoffice/internal/httpapi"
	"ayrene.com/backoffice/internal/messaging"
	"ayrene.com/backoffice/internal/migrate"
	"ayrene.com/backoffice/internal/obs"
	"ayrene.com/backoffice/internal/policy"
	"ayrene.com/backoffice/internal/store"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	log := obs.Logger()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := obs.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.WithError(err).Fatal("configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("api stopped")
	}
	log.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	shutdownTracing, err := obs.InitTracing(ctx, obs.TracingOptions{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    "ayrene-backoffice",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.WithError(err).Warn("tracing shutdown")
		}
	}()

	if cfg.Postgres.DSN != "" && cfg.Postgres.MigrateOnStart {
		if err := migrateUp(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	}

	backend, err := store.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer backend.Close()
	if cfg.Postgres.DSN == "" {
		log.Warn("no PostgreSQL DSN configured, using the in-memory store")
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	accounts, err := auth.NewService(backend.Users(), tokens)
	if err != nil {
		return err
	}

	created, err := accounts.EnsureDefaultAdmin(ctx, auth.AdminSeed{
		Name:     cfg.Admin.Name,
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
	})
	switch {
	case err != nil:
		log.WithError(err).Error("default admin bootstrap failed")
	case created:
		log.WithField("email", cfg.Admin.Email).Warn("default admin created, rotate its password")
	}

	recorder := audit.NewRecorder(backend.Audit())
	ready := httpapi.ReadyProbe{Store: backend}
	api, err := httpapi.New(httpapi.Deps{
		Config:   cfg,
		Store:    backend,
		Accounts: accounts,
		Gate:     auth.NewAuthenticator(tokens, backend.Users()),
		Messages: messaging.NewService(backend.Messages(), ai.NewRuleProcessor()),
		Policy:   policy.New(backend.Teams()),
		Audit:    recorder,
		Ready:    ready,
		Version:  version,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(ready).Register(grpcSrv)
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.WithError(runErr).Error("server failed, shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := recorder.FlushContext(sctx); err != nil {
		log.WithError(err).Warn("audit writes still pending at shutdown")
	}
	return runErr
}

func migrateUp(ctx context.Context, dsn string) error {
	mgr, err := migrate.NewManager(dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer mgr.Close()
	if err := mgr.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	st, err := mgr.Status()
	if err == nil {
		obs.Logger().WithField("schema", st.String()).Info("migrations applied")
	}
	return nil
}
