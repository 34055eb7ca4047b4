package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hilthontt/bingo/internal/application/session"
	"github.com/hilthontt/bingo/internal/infrastructure/configs"
	"github.com/hilthontt/bingo/internal/infrastructure/events"
	"github.com/hilthontt/bingo/internal/infrastructure/logging"
	"github.com/hilthontt/bingo/internal/infrastructure/messaging"
	"github.com/hilthontt/bingo/internal/infrastructure/metrics"
	"github.com/hilthontt/bingo/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/bingo/internal/infrastructure/repository"
	"github.com/hilthontt/bingo/internal/infrastructure/tracing"
	"github.com/hilthontt/bingo/internal/infrastructure/ws"
	"github.com/hilthontt/bingo/internal/presentation/api"
	"github.com/hilthontt/bingo/internal/presentation/handler/games"
	"github.com/hilthontt/bingo/internal/presentation/handler/health"
)

const releaseVersion = "0.1.0"

type flags struct {
	configPath string
	port       uint16
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "bingo",
		Short:         "Real-time multiplayer bingo rooms over websockets.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, cmd.Flags().Changed("port"))
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&f.configPath, "config", "c", "", "path to the YAML config file (env: BINGO_CONFIG)")
	fs.Uint16VarP(&f.port, "port", "p", 8080, "port to listen on, overrides http.port")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

func run(ctx context.Context, f *flags, portSet bool) error {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := configs.Load(configs.DetermineConfigPath(f.configPath))
	if err != nil {
		return err
	}
	if portSet {
		cfg.HTTP.Port = f.port
	}
	if f.verbose {
		cfg.Logger.Level = "debug"
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	shutdownTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warnw("failed to flush traces", "error", err)
		}
	}()

	registry := repository.NewRoomRegistry(cfg.RoomStore.Capacity)
	m := metrics.New(registry)
	hub := ws.NewHub(cfg.HTTP.AllowedOrigins, logger, m.BroadcastDropped.Inc)

	publisher, closePublisher := newPublisher(cfg.AMQP, logger)
	defer closePublisher()

	server := session.NewServer(registry, hub, publisher, m, logger, session.Options{
		VerifyClaims: cfg.Game.VerifyClaims,
	})
	go server.RunReaper(ctx, cfg.RoomStore.ReapInterval, cfg.RoomStore.FinishedTTL)

	limiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: float64(cfg.RateLimiter.MaxRatePerSecond),
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})
	defer limiter.Close()

	gamesHandler := games.NewHandler(server, hub, m, logger, games.Options{
		IntentRate:  cfg.IntentLimiter.RatePerSecond,
		IntentBurst: cfg.IntentLimiter.Burst,
		PublicURL:   cfg.HTTP.PublicURL,
	})
	healthHandler := health.NewHandler(hub.ClientCount, registry.Count)

	app := api.NewApplication(*cfg, gamesHandler, healthHandler, logger, limiter, m)
	app.OnShutdown(hub.DisconnectAll)

	logger.Infow("starting bingo",
		"version", releaseVersion,
		"addr", cfg.HTTP.Addr(),
		"verifyClaims", cfg.Game.VerifyClaims,
		"roomCapacity", cfg.RoomStore.Capacity,
	)

	return app.Run(ctx, app.Mount())
}

// newPublisher connects to RabbitMQ when amqp.uri is set. Without a broker,
// or when it is unreachable at startup, game notifications are discarded.
func newPublisher(cfg configs.AMQPConfig, logger *zap.SugaredLogger) (events.Publisher, func()) {
	if cfg.URI == "" {
		return events.NopPublisher{}, func() {}
	}

	rabbitmq, err := messaging.NewRabbitMQ(cfg.URI, cfg.Exchange)
	if err != nil {
		logger.Warnw("game notifications disabled", "error", err)
		return events.NopPublisher{}, func() {}
	}

	logger.Infow("publishing game notifications", "exchange", cfg.Exchange)
	return events.NewGamePublisher(rabbitmq), rabbitmq.Close
}
