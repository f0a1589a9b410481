package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"giftshop/auth"
	"giftshop/config"
	"giftshop/handler"
	"giftshop/logger"
	"giftshop/metrics"
	"giftshop/seed"
	"giftshop/service"
	"giftshop/store"
)

const (
	limiterIdle      = 10 * time.Minute
	shutdownDeadline = 10 * time.Second
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, rootOpts.cfg)
		},
	}
}

// server is everything serve starts, wired but not yet listening.
type server struct {
	http    *http.Server
	store   store.DocumentStore
	auth    *auth.Service
	limiter *handler.RateLimiter
	log     *logrus.Entry
}

func newServer(ctx context.Context, cfg config.Config, log *logrus.Entry) (*server, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.SeedOnStart {
		cat, err := seed.Default()
		if err != nil {
			st.Close()
			return nil, err
		}
		stats, err := seed.Apply(ctx, st, cat)
		if err != nil {
			st.Close()
			return nil, err
		}
		log.WithField("products", stats.Products).Info("catalog seeded")
	}

	reg := metrics.New()
	svc := service.NewService(st, log, reg)
	authSvc := auth.NewService(st, auth.Options{
		Secret:     []byte(cfg.JWTSecret),
		TTL:        cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, log)
	limiter := handler.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)

	h := handler.NewHandler(handler.Config{
		Catalog: svc.Catalog,
		Cart:    svc.Cart,
		Orders:  svc.Orders,
		Auth:    authSvc,
		Store:   st,
		Metrics: reg,
		Limiter: limiter,
		Log:     log,

		TrustProxy: cfg.TrustProxy,
	})

	return &server{
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           h.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		store:   st,
		auth:    authSvc,
		limiter: limiter,
		log:     log,
	}, nil
}

// housekeeping schedules limiter pruning and expired session cleanup.
func (s *server) housekeeping(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc("@every 5m", func() {
		if n := s.limiter.Prune(limiterIdle); n > 0 {
			s.log.WithField("pruned", n).Debug("rate limiters pruned")
		}
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc("@hourly", func() {
		n, err := s.auth.PurgeExpiredSessions(ctx)
		if err != nil {
			s.log.WithError(err).Warn("session purge failed")
			return
		}
		s.log.WithField("purged", n).Info("expired sessions purged")
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	log := logger.New(logger.Options{
		Service: "giftshop",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	srv, err := newServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer srv.store.Close()

	jobs, err := srv.housekeeping(ctx)
	if err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.http.Addr, "store": cfg.StoreDriver}).Info("http server starting")
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown error")
	}
	log.Info("bye")
	return nil
}
