package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-gameserver/game"
	"github.com/cyberinferno/go-gameserver/gameclient"
	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/packet"
)

type botOptions struct {
	addr     string
	udpAddr  string
	count    int
	interval time.Duration
	shoot    float64
	logLevel string
}

func botCmd() *cobra.Command {
	var opts botOptions

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Connect simulated players to a server",
		Long: `Connect --count players that wander randomly and occasionally shoot.
Useful for load testing and for watching the admin session list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", opts.count)
			}

			l, err := logger.New(logger.Options{Service: "gamebot", Level: opts.logLevel, Console: true})
			if err != nil {
				return err
			}
			defer l.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBots(ctx, opts, l)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.addr, "addr", "a", "127.0.0.1:26950", "Server address")
	flags.StringVar(&opts.udpAddr, "datagram-addr", "", "Datagram address when it differs from --addr")
	flags.IntVarP(&opts.count, "count", "n", 4, "Number of bots")
	flags.DurationVar(&opts.interval, "interval", 50*time.Millisecond, "Delay between movement updates")
	flags.Float64Var(&opts.shoot, "shoot", 0.02, "Chance per update that a bot shoots")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Minimum log level")

	return cmd
}

func runBots(ctx context.Context, opts botOptions, l logger.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 1; i <= opts.count; i++ {
		name := fmt.Sprintf("bot-%d", i)
		g.Go(func() error {
			return runBot(gctx, opts, name, l.With(logger.Field{Key: "bot", Value: name}))
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runBot(ctx context.Context, opts botOptions, name string, l logger.Logger) error {
	cfg := gameclient.DefaultConfig(opts.addr, name)
	cfg.DatagramAddress = opts.udpAddr

	client := gameclient.New(cfg, l)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}

	id, err := client.WaitWelcome(ctx)
	if err != nil {
		return err
	}
	l.Info("bot joined", logger.Field{Key: "id", Value: id})

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	inputs := make([]bool, game.InputCount)
	var yaw float64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.Done():
			return fmt.Errorf("%s lost its connection", name)
		case <-ticker.C:
		}

		// Hold each key for a while so the walk is not pure jitter.
		if rand.IntN(10) == 0 {
			for i := range inputs {
				inputs[i] = rand.IntN(3) == 0
			}
			yaw += (rand.Float64() - 0.5) * math.Pi / 2
		}

		rotation := packet.Quaternion{Y: float32(math.Sin(yaw / 2)), W: float32(math.Cos(yaw / 2))}
		if err := client.SendMovement(inputs, rotation); err != nil {
			return fmt.Errorf("%s movement: %w", name, err)
		}

		if rand.Float64() < opts.shoot {
			direction := packet.Vector3{X: float32(math.Sin(yaw)), Z: float32(math.Cos(yaw))}
			if err := client.SendShoot(direction); err != nil {
				return fmt.Errorf("%s shoot: %w", name, err)
			}
		}
	}
}
