package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reboul/storefront/internal/domain/cart"
	"github.com/reboul/storefront/internal/domain/catalog"
	"github.com/reboul/storefront/internal/domain/stock"
	"github.com/reboul/storefront/internal/handler"
	"github.com/reboul/storefront/internal/notify"
	"github.com/reboul/storefront/internal/storage/postgres"
	redisstore "github.com/reboul/storefront/internal/storage/redis"
	"github.com/reboul/storefront/internal/upload"
	"github.com/reboul/storefront/pkg/health"
	"github.com/reboul/storefront/pkg/httpmiddleware"
)

// server holds the wired application: the HTTP handler and what it needs
// to run in the background and to shut down.
type server struct {
	handler http.Handler
	health  *health.Health
	promos  *cart.LiveTable
	closers []func()
}

// Close releases the connections and background workers in reverse order.
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newServer creates all dependencies and the HTTP handler. The caller owns
// the returned server and must Close it.
func newServer(ctx context.Context, lg *zap.Logger, t httpmiddleware.Telemetry, cfg *Config) (_ *server, rerr error) {
	cur, err := cfg.Currency()
	if err != nil {
		return nil, err
	}

	s := &server{}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	// PostgreSQL: migrations first, then the pool.
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	s.closers = append(s.closers, pool.Close)

	// Redis for cart sessions.
	redisOpts, err := cfg.Redis.Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(redisOpts)
	s.closers = append(s.closers, func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("Close redis", zap.Error(err))
		}
	})
	sessions := redisstore.NewSessionStore(rdb, cfg.Cart.SessionTTL)

	// Repositories.
	products := postgres.NewProductRepository(pool)
	categories := postgres.NewCategoryRepository(pool)
	promos := postgres.NewPromoRepository(pool)

	// Domain services.
	ledger, err := stock.NewLedger(products, t.TracerProvider(), t.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create stock ledger")
	}
	images, err := upload.NewStore(cfg.Uploads.Dir, cfg.Uploads.Prefix, cfg.Uploads.MaxSize)
	if err != nil {
		return nil, errors.Wrap(err, "create upload store")
	}
	catalogSvc := catalog.NewService(products, images, catalog.Policy{
		RequireCategories: cfg.Catalog.RequireCategories,
		StrictStock:       cfg.Catalog.StrictStock,
	})

	hub := notify.NewHub(cfg.Cart.ToastTTL)
	s.closers = append(s.closers, hub.Close)

	s.promos = cart.NewLiveTable(promos, cart.DefaultPromos)
	if n, err := s.promos.Refresh(ctx); err != nil {
		lg.Warn("Using built-in promo codes", zap.Error(err))
	} else {
		lg.Info("Promo codes loaded", zap.Int("count", n))
	}
	carts := cart.NewService(sessions, hub, products, s.promos)

	// Health check service.
	s.health = health.New()
	s.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	s.health.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", sessions))
	s.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	s.health.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))

	// HTTP handlers.
	h := handler.New(handler.Config{Currency: cur}, handler.Deps{
		Catalog:    catalogSvc,
		Stock:      ledger,
		Categories: categories,
		Images:     images,
		Carts:      carts,
		Toasts:     hub,
	})
	router := h.Router(
		httpmiddleware.RouteLabels(),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", s.health.LiveEndpoint)
	router.Get("/readyz", s.health.ReadyEndpoint)
	router.Handle(cfg.Uploads.Prefix+"/*", http.StripPrefix(cfg.Uploads.Prefix, images.Handler()))

	s.handler = httpmiddleware.Wrap(router, serverMiddlewares(lg, t, cfg.CORS)...)
	return s, nil
}

// serverMiddlewares is the chain around the router, outermost first. The
// logger is injected before Recovery so recovered panics are logged.
func serverMiddlewares(lg *zap.Logger, t httpmiddleware.Telemetry, cors CORSConfig) []httpmiddleware.Middleware {
	return []httpmiddleware.Middleware{
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cors.Origins,
			AllowHeaders:     []string{"Content-Type", handler.SessionHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{handler.SessionHeader, httpmiddleware.RequestIDHeader},
			AllowCredentials: cors.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.Instrument("storefront-api", t),
		httpmiddleware.RequestID(),
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	s, err := newServer(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	s.health.Start(ctx, 10*time.Second)
	s.health.SetReady(true)

	srv := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           s.handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refreshPromos(gctx, s.promos, cfg.Cart.PromoRefresh)
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		s.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		s.health.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// refreshPromos reloads the promo table every interval until ctx is done.
// A failed reload keeps the previous table.
func refreshPromos(ctx context.Context, table *cart.LiveTable, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := table.Refresh(ctx); err != nil {
				lg.Warn("Refresh promo codes", zap.Error(err))
			}
		}
	}
}
