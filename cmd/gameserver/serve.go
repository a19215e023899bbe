package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-gameserver/admin"
	"github.com/cyberinferno/go-gameserver/config"
	"github.com/cyberinferno/go-gameserver/game"
	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/metrics"
	"github.com/cyberinferno/go-gameserver/presence"
	"github.com/cyberinferno/go-gameserver/server"
)

const (
	presenceQueueSize = 256
	presenceTimeout   = 2 * time.Second
)

func serveCmd() *cobra.Command {
	v := viper.New()
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the game server until interrupted.

Settings come from config.yaml in --config, then GAMESERVER_* environment
variables (GAMESERVER_MAX_PLAYERS, GAMESERVER_LOG_LEVEL, ...), then flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configDir)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configDir, "config", "c", "./", "Directory containing config.yaml")
	flags.Int("port", 26950, "Port of both the TCP and the UDP transport")
	flags.Int("max-players", 10, "Number of player slots")
	flags.String("admin-addr", "", "Listen address of the admin HTTP server")
	flags.String("log-level", "info", "Minimum log level")

	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("max_players", flags.Lookup("max-players"))
	_ = v.BindPFlag("admin.addr", flags.Lookup("admin-addr"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	l, err := logger.New(logger.Options{
		Service: cfg.Log.Service,
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer l.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	roster, err := newPresence(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer roster.Close()

	world := game.NewWorld(l)
	opts := world.Options()
	opts.Logger = l
	opts.Metrics = metrics.New(reg, cfg.TickInterval)
	opts.Presence = roster

	srv, err := server.New(cfg, opts)
	if err != nil {
		return err
	}
	world.Attach(srv)

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Run returns nil on a requested stop; the admin server goes with it.
		defer cancel()
		return srv.Run(gctx)
	})

	if cfg.Admin.Addr != "" {
		adminSrv := admin.NewServer(cfg.Admin.Addr, admin.NewRouter(srv, reg, l), l)
		g.Go(func() error {
			return adminSrv.Run(gctx)
		})
	}

	return g.Wait()
}

// newPresence returns the Redis roster when redis.addr is set, otherwise a
// publisher that does nothing.
func newPresence(ctx context.Context, cfg *config.Config, l logger.Logger) (presence.Publisher, error) {
	if cfg.Redis.Addr == "" {
		return presence.Noop{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	rp := presence.NewRedisPublisher(client, cfg.Redis.Key)

	pingCtx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	if err := rp.Ping(pingCtx); err != nil {
		_ = rp.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	l.Info("publishing player roster", logger.Field{Key: "redis", Value: cfg.Redis.Addr}, logger.Field{Key: "key", Value: cfg.Redis.Key})

	return presence.NewAsync(rp, l, presenceQueueSize, presenceTimeout), nil
}
