package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/StudyRoom/internal/adapters/auth"
	router "github.com/dkeye/StudyRoom/internal/adapters/http"
	"github.com/dkeye/StudyRoom/internal/adapters/rtc"
	"github.com/dkeye/StudyRoom/internal/app"
	"github.com/dkeye/StudyRoom/internal/app/orch"
	"github.com/dkeye/StudyRoom/internal/config"
	"github.com/dkeye/StudyRoom/internal/metrics"
	"github.com/dkeye/StudyRoom/internal/store"
)

const (
	loginLimit     = 5
	loginWindow    = time.Minute
	pruneInterval  = 5 * time.Minute
	shutdownPeriod = 5 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and signaling server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func policyFor(name string) app.Policy {
	if name == "tolerate" {
		return app.TolerantPolicy{}
	}
	return app.SimplePolicy{}
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	ice, err := rtc.NewWebRTCConfig(cfg.ICE)
	if err != nil {
		return fmt.Errorf("ice config: %w", err)
	}

	m := metrics.New()
	o := &orch.Orchestrator{
		Registry:   app.NewRegistry(),
		Rooms:      app.NewRoomManager(),
		Policy:     policyFor(cfg.SlowPolicy),
		Metrics:    m,
		IdleStatus: cfg.IdleStatus,
	}

	connectLimiter := auth.NewRateLimiter(cfg.Auth.ConnectLimit, cfg.Auth.ConnectWindow)
	loginLimiter := auth.NewRateLimiter(loginLimit, loginWindow)

	r := router.SetupRouter(ctx, cfg, o, router.Services{
		Tokens:         auth.NewJWT(cfg.Auth.JWTSecret),
		Store:          st,
		ICE:            ice,
		ConnectLimiter: connectLimiter,
		LoginLimiter:   loginLimiter,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("StudyRoom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(pruneInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				connectLimiter.Prune()
				loginLimiter.Prune()
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
