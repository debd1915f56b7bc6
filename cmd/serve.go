package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/okian/callout/internal/adapters/http/api"
	"github.com/okian/callout/internal/adapters/http/swagger"
	"github.com/okian/callout/internal/adapters/pubsub"
	"github.com/okian/callout/internal/adapters/repository/sqlite"
	"github.com/okian/callout/internal/adapters/ws"
	app "github.com/okian/callout/internal/app"
	"github.com/okian/callout/internal/config"
	"github.com/okian/callout/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

type serveFlags struct {
	configFile string
	addr       string
	publicURL  string
	auditDB    string
	redisAddr  string
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.Get())
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlag)
	fs.StringVarP(&f.configFile, "config", "c", "", "YAML config file (env: CALLOUT_CONFIG)")
	fs.StringVarP(&f.addr, "addr", "a", ":8080", "address to listen on (env: CALLOUT_ADDR)")
	fs.StringVar(&f.publicURL, "public-url", "", "base URL used in join links (env: CALLOUT_PUBLIC_URL)")
	fs.StringVar(&f.auditDB, "audit-db", "callout.db", "SQLite audit file, empty to disable (env: CALLOUT_AUDIT_DB_PATH)")
	fs.StringVar(&f.redisAddr, "redis-addr", "", "Redis address for multi-node fan-out (env: CALLOUT_REDIS_ADDR)")

	return cmd
}

// loadConfig layers flags the user set explicitly over defaults, file and env.
func loadConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	fs := cmd.Flags()
	if fs.Changed("config") {
		if err := os.Setenv("CALLOUT_CONFIG", f.configFile); err != nil {
			return nil, fmt.Errorf("set config path: %w", err)
		}
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}

	if fs.Changed("addr") {
		cfg.Addr = f.addr
	}
	if fs.Changed("public-url") {
		cfg.PublicURL = f.publicURL
	}
	if fs.Changed("audit-db") {
		cfg.AuditDBPath = f.auditDB
	}
	if fs.Changed("redis-addr") {
		cfg.RedisAddr = f.redisAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("log-level") {
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("%w: log_level: %w", config.ErrInvalidConfig, err)
		}
	}
	return cfg, nil
}

// stack is everything serve starts, in shutdown order.
type stack struct {
	svc    *app.Service
	bus    *pubsub.Bus
	hub    *ws.Hub
	audit  *sqlite.Store
	redis  *redis.Client
	router *httprouter.Router
}

func (s *stack) close() {
	s.svc.Stop()
	_ = s.bus.Close()
	if s.audit != nil {
		_ = s.audit.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// build wires the service, its adapters and the HTTP routes from cfg.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*stack, error) {
	st := &stack{bus: pubsub.NewBus(pubsub.WithBusLogger(log.Named("bus")))}

	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithIdleTimeout(cfg.IdleTimeout()),
		app.WithDefaultSettings(cfg.Room),
		app.WithVoteRate(cfg.VoteRatePerSec, cfg.VoteBurst),
	}

	if cfg.AuditDBPath != "" {
		audit, err := sqlite.Open(cfg.AuditDBPath)
		if err != nil {
			_ = st.bus.Close()
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		st.audit = audit
		opts = append(opts, app.WithAuditStore(audit))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = st.bus.Close()
			if st.audit != nil {
				_ = st.audit.Close()
			}
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		st.redis = client
		// Every node, this one included, hears room outputs through Redis.
		pubsub.Relay(ctx, client, cfg.RedisChannelPrefix, st.bus, log.Named("relay"))
		opts = append(opts, app.WithPublisher(pubsub.NewRedisPublisher(client, cfg.RedisChannelPrefix)))
	} else {
		opts = append(opts, app.WithPublisher(st.bus))
	}

	st.svc = app.New(opts...)
	st.hub = ws.NewHub(st.svc, st.bus,
		ws.WithLogger(log.Named("ws")),
		ws.WithLeaveGrace(cfg.LeaveGrace()),
	)

	st.router = httprouter.New()
	api.NewServer(st.svc,
		api.WithStats(st.svc),
		api.WithSockets(st.hub),
		api.WithPublicURL(cfg.PublicURL),
		api.WithMaxLimit(cfg.MaxScoreboardLimit),
		api.WithLogger(log.Named("api")),
	).Register(st.router)
	swagger.Register(st.router)

	return st, nil
}

func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	st, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startServiceMetricsUpdater(ctx, st.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           st.router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.Bool("audit", st.audit != nil),
			logger.Bool("redis", st.redis != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// startServiceMetricsUpdater refreshes room gauges between commands.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.GetStats()
		}
	}
}
