// Package server implements the session layer of the game server: a fixed
// pool of player slots fed by a TCP accept loop and a shared UDP socket,
// packet dispatch on a single tick goroutine, and the outbound protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-gameserver/config"
	"github.com/cyberinferno/go-gameserver/idgenerator"
	"github.com/cyberinferno/go-gameserver/liveness"
	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/mainthread"
	"github.com/cyberinferno/go-gameserver/metrics"
	"github.com/cyberinferno/go-gameserver/packet"
	"github.com/cyberinferno/go-gameserver/presence"
)

// ErrServerFull is logged when a connection arrives while every slot is taken.
var ErrServerFull = errors.New("server full")

// EntityFactory creates the game object for a session entering the game.
type EntityFactory func(id int, username string) Entity

// EntityDestroyer releases the game object of a disconnecting session.
type EntityDestroyer func(id int, e Entity)

// Options wires the collaborators of a Server. Every field is optional
// except the handlers for client packets other than WelcomeReceived.
type Options struct {
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	Presence presence.Publisher

	NewEntity     EntityFactory
	DestroyEntity EntityDestroyer

	// Handlers for every client packet except WelcomeReceived, which the
	// server handles itself.
	Handlers map[packet.ClientPacket]Handler

	// OnTick runs on the tick goroutine after queued actions each tick.
	OnTick mainthread.TickFunc
}

// Server owns the session slots and both transports.
type Server struct {
	cfg      *config.Config
	logger   logger.Logger
	metrics  *metrics.Metrics
	presence presence.Publisher
	liveness *liveness.Tracker

	queue       *mainthread.Queue
	loop        *mainthread.Loop
	generations *idgenerator.IdGenerator
	handlers    map[packet.ClientPacket]Handler
	slots       []*Session

	newEntity     EntityFactory
	destroyEntity EntityDestroyer

	mu       sync.Mutex
	listener *net.TCPListener
	udp      atomic.Pointer[net.UDPConn]
	cancel   context.CancelFunc
	stopped  bool
	running  atomic.Bool
}

// New creates a Server with cfg.MaxPlayers slots. Nothing is bound until
// Start or Run.
//
// Parameters:
//   - cfg: Validated configuration
//   - opts: Collaborators and packet handlers
//
// Returns:
//   - The Server
//   - An error if cfg is invalid or the handler table is incomplete
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:           cfg,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		presence:      opts.Presence,
		generations:   idgenerator.NewIdGenerator(0),
		newEntity:     opts.NewEntity,
		destroyEntity: opts.DestroyEntity,
	}

	if s.logger == nil {
		s.logger = logger.Nop()
	}

	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry(), cfg.TickInterval)
	}

	if s.presence == nil {
		s.presence = presence.Noop{}
	}

	if s.newEntity == nil {
		s.newEntity = func(int, string) Entity { return spawnEntity{} }
	}

	handlers, err := buildHandlers(map[packet.ClientPacket]Handler{
		packet.WelcomeReceived: s.welcomeReceived,
	}, opts.Handlers)
	if err != nil {
		return nil, err
	}
	s.handlers = handlers

	s.slots = make([]*Session, cfg.MaxPlayers+1)
	for id := 1; id <= cfg.MaxPlayers; id++ {
		s.slots[id] = newSession(id, s)
	}

	s.queue = mainthread.NewQueue(s.logger)
	s.loop = mainthread.NewLoop(s.queue, cfg.TickInterval, s.logger)
	s.loop.SetObserver(s.metrics)
	if opts.OnTick != nil {
		s.loop.OnTick(opts.OnTick)
	}

	s.liveness = liveness.New(cfg.IdleTimeout, func(id int, gen uint64) {
		s.deferDisconnect(id, gen, ReasonIdle)
	})

	return s, nil
}

// MaxPlayers returns the number of slots.
func (s *Server) MaxPlayers() int {
	return len(s.slots) - 1
}

// Session returns the slot with the given id.
func (s *Server) Session(id int) (*Session, bool) {
	if id < 1 || id >= len(s.slots) {
		return nil, false
	}

	return s.slots[id], true
}

// Defer schedules action on the tick goroutine.
func (s *Server) Defer(action mainthread.Action) {
	s.queue.Enqueue(action)
}

// Running reports whether the transports are bound.
func (s *Server) Running() bool {
	return s.running.Load()
}

// StreamAddr returns the bound TCP address, or nil before Start.
func (s *Server) StreamAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// DatagramAddr returns the bound UDP address, or nil before Start.
func (s *Server) DatagramAddr() net.Addr {
	if udp := s.udp.Load(); udp != nil {
		return udp.LocalAddr()
	}
	return nil
}

// Start binds the TCP listener and the UDP socket. Failing to bind is the
// only fatal server error.
//
// Returns:
//   - An error if the server is already started or either bind fails
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server already started")
	}

	addr := s.cfg.Addr()

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", addr, err)
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		s.logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server failed to listen on tcp %s: %w", addr, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("resolving %s: %w", addr, err)
	}

	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		_ = ln.Close()
		s.logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server failed to listen on udp %s: %w", addr, err)
	}

	_ = udp.SetReadBuffer(s.datagramSize())
	_ = udp.SetWriteBuffer(s.cfg.BufferSize)

	s.listener = ln
	s.udp.Store(udp)
	s.running.Store(true)

	s.logger.Info("server started",
		logger.Field{Key: "stream", Value: ln.Addr().String()},
		logger.Field{Key: "datagram", Value: udp.LocalAddr().String()},
		logger.Field{Key: "max_players", Value: s.MaxPlayers()},
	)

	return nil
}

// Run starts the server if needed and blocks running the accept loop, the
// datagram loop and the tick loop until ctx ends or Stop is called. On return
// every session has been disconnected.
//
// Returns:
//   - nil after a requested shutdown, otherwise the first loop or bind error
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	stopped, started := s.stopped, s.listener != nil
	s.mu.Unlock()

	if stopped {
		return nil
	}

	if !started {
		if err := s.Start(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	ln := s.listener
	s.mu.Unlock()
	udp := s.udp.Load()

	if err := s.presence.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear presence roster", logger.Field{Key: "error", Value: err})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ln) })
	g.Go(func() error { return s.datagramLoop(udp) })
	g.Go(func() error { return s.loop.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.closeListeners()
		return nil
	})

	err := g.Wait()

	s.disconnectAll(ReasonShutdown)
	s.liveness.Close()
	s.logger.Info("server stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop ends a running Run and closes both transports. Safe to call more than
// once.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.closeListeners()
}

func (s *Server) closeListeners() {
	if !s.running.Swap(false) {
		return
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if udp := s.udp.Load(); udp != nil {
		_ = udp.Close()
	}
}

// Disconnect schedules the removal of the connection holding slot id now. A
// client that takes the slot before the removal runs is left alone.
func (s *Server) Disconnect(id int) {
	sess, ok := s.Session(id)
	if !ok {
		return
	}

	gen, connected := sess.holder()
	if !connected {
		return
	}

	s.deferDisconnect(id, gen, ReasonKicked)
}

func (s *Server) deferDisconnect(id int, gen uint64, reason string) {
	s.queue.Enqueue(func() { s.disconnect(id, gen, reason) })
}

// disconnect frees slot id if connection gen still holds it. Tick goroutine
// only.
func (s *Server) disconnect(id int, gen uint64, reason string) {
	sess, ok := s.Session(id)
	if !ok {
		return
	}

	remote, released := sess.release(gen)
	if !released {
		return
	}

	s.logger.Info("player disconnected",
		logger.Field{Key: "slot", Value: id},
		logger.Field{Key: "remote", Value: remote},
		logger.Field{Key: "reason", Value: reason},
	)

	if sess.entity != nil {
		if s.destroyEntity != nil {
			s.destroyEntity(id, sess.entity)
		}

		if err := s.presence.Leave(context.Background(), id); err != nil {
			s.logger.Debug("presence leave not recorded", logger.Field{Key: "error", Value: err})
		}
	}

	sess.entity = nil
	sess.username = ""
	s.metrics.SessionClosed(reason)

	s.PlayerDisconnected(id)
}

func (s *Server) disconnectAll(reason string) {
	for _, sess := range s.slots[1:] {
		s.disconnect(sess.id, 0, reason)
	}
}

// spawnEntity stands in when no entity factory is configured.
type spawnEntity struct{}

func (spawnEntity) Position() packet.Vector3    { return packet.Vector3{} }
func (spawnEntity) Rotation() packet.Quaternion { return packet.IdentityQuaternion }
func (spawnEntity) Health() float32             { return 100 }
