package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hilthontt/bingo/internal/infrastructure/configs"
	"github.com/hilthontt/bingo/internal/infrastructure/metrics"
	"github.com/hilthontt/bingo/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/bingo/internal/presentation/handler/games"
	healthHandler "github.com/hilthontt/bingo/internal/presentation/handler/health"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Application struct {
	config        configs.Config
	gamesHandler  *games.Handler
	healthHandler *healthHandler.Handler
	logger        *zap.SugaredLogger
	ratelimiter   ratelimiter.Limiter
	metrics       *metrics.Metrics
	onShutdown    []func()
}

func NewApplication(
	config configs.Config,
	gamesHandler *games.Handler,
	healthHandler *healthHandler.Handler,
	logger *zap.SugaredLogger,
	ratelimiter ratelimiter.Limiter,
	m *metrics.Metrics,
) *Application {
	return &Application{
		config:        config,
		gamesHandler:  gamesHandler,
		healthHandler: healthHandler,
		logger:        logger,
		ratelimiter:   ratelimiter,
		metrics:       m,
	}
}

// OnShutdown registers fn to run when the server begins shutting down,
// before in-flight requests are drained. Websocket sessions are hijacked
// connections that Shutdown does not close by itself.
func (app *Application) OnShutdown(fn func()) {
	app.onShutdown = append(app.onShutdown, fn)
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(app.enableCors)
	r.Use(app.rateLimiterMiddleware)

	// Long-lived; must stay outside the request timeout.
	r.Get("/ws", app.gamesHandler.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Route("/games/{gameId}", func(r chi.Router) {
				r.Get("/", app.gamesHandler.GetGameHandler)
				r.Get("/qr", app.gamesHandler.GetGameQRHandler)
			})

			r.Get("/health", app.healthHandler.GetHealth)
			r.Get("/healthz", app.healthHandler.GetHealth)
			r.Get("/ready", app.healthHandler.GetHealth)
			r.Get("/live", app.healthHandler.GetHealth)
		})

		r.Handle("/metrics", app.metrics.Handler())
	})

	return otelhttp.NewHandler(r, "http.server")
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (app *Application) Run(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.HTTP.Addr(),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}
	for _, fn := range app.onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	shutdown := make(chan error, 1)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		app.logger.Infow("shutting down server", "reason", context.Cause(ctx))

		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	app.logger.Infow("server has started", "addr", srv.Addr)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", srv.Addr)

	return nil
}
