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
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/martillo-live/internal/bidding"
	"github.com/DoyleJ11/martillo-live/internal/config"
	"github.com/DoyleJ11/martillo-live/internal/coord"
	"github.com/DoyleJ11/martillo-live/internal/coordinator"
	"github.com/DoyleJ11/martillo-live/internal/httpapi"
	"github.com/DoyleJ11/martillo-live/internal/hub"
	"github.com/DoyleJ11/martillo-live/internal/notify"
	"github.com/DoyleJ11/martillo-live/internal/orchestrator"
	"github.com/DoyleJ11/martillo-live/internal/payment"
	"github.com/DoyleJ11/martillo-live/internal/store"
	"github.com/DoyleJ11/martillo-live/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	repo, closeRepo, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	shared, closeShared, err := openCoord(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeShared()

	events, closeEvents, err := openEvents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	gw, err := payment.NewMercadoPago(cfg.MercadoPagoToken, cfg.PaymentMock, cfg.PublicBaseURL, log)
	if err != nil {
		return err
	}
	payments := payment.NewService(repo, gw, payment.Options{TaxRate: cfg.TaxRate, TTL: cfg.PaymentTTL}, log)

	h := hub.NewHub(ctx, log)
	defer h.Shutdown()
	rooms := coordinator.NewRooms(h, log)

	orch := orchestrator.New(shared, repo, payments, events, rooms, orchestrator.Options{
		Permissive:     cfg.PermissiveLots,
		PaymentTimeout: cfg.PaymentTimeout,
	}, log)
	defer orch.Close()

	co := coordinator.New(h, rooms, bidding.New(shared, repo, events, log), orch, repo, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(co, orch, ws.Options{OriginPatterns: cfg.WSOrigins}, log),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		mem := store.NewMemory()
		if cfg.SeedDemo {
			store.SeedDemo(mem)
			log.Info("seeded demo auction", zap.String("auction", store.DemoAuctionID))
		}
		log.Warn("using in-memory store; data is lost on restart")
		return mem, func() {}, nil
	}
	pg, closeFn, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	log.Info("connected to postgres")
	return pg, closeFn, nil
}

func openCoord(ctx context.Context, cfg config.Config, log *zap.Logger) (coord.Service, func(), error) {
	opts := coord.Options{
		LotLockTTL:     cfg.LotLockTTL,
		AuctionLockTTL: cfg.AuctionLockTTL,
		BidCooldown:    cfg.BidCooldown,
	}
	if cfg.RedisAddr == "" {
		log.Info("using in-process locks; run a single instance")
		return coord.NewMemory(opts), func() {}, nil
	}
	rdb, err := coord.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return coord.WithFallback(coord.NewRedis(rdb, opts), log), func() { _ = rdb.Close() }, nil
}

func openEvents(ctx context.Context, cfg config.Config, log *zap.Logger) (notify.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return notify.NewLog(log), func() {}, nil
	}
	n, err := notify.DialNATS(ctx, cfg.NATSURL, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return n, func() { _ = n.Close() }, nil
}
