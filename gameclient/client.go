// Package gameclient is a protocol client for the game server. It performs
// the welcome handshake, binds the datagram endpoint and delivers every
// server packet to handlers registered per packet type.
package gameclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/packet"
	"github.com/cyberinferno/go-gameserver/safemap"
)

// ErrNotConnected is returned by sends before the handshake completes or
// after the connection is gone.
var ErrNotConnected = errors.New("not connected")

// ConnectionState represents the current state of the client.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected
	Connecting                          // Dial in progress
	Connected                           // Stream connected, waiting for Welcome
	InGame                              // Welcome answered and datagram endpoint bound
	Closed                              // Closed by the caller; the client cannot be reused
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case InGame:
		return "InGame"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Handler receives one server packet positioned after its type id. Stream
// packets and datagrams are delivered from different goroutines.
type Handler func(p *packet.Packet)

// StateHandler is called synchronously on every state change.
type StateHandler func(state ConnectionState, err error)

// Config holds the client settings.
type Config struct {
	// Address is the "host:port" of the stream transport.
	Address string
	// DatagramAddress is the "host:port" of the datagram transport; empty
	// means Address.
	DatagramAddress string
	// Username is sent in WelcomeReceived.
	Username string
	// ConnectionTimeout bounds the stream dial.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds each stream write; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadBufferSize is the scratch buffer for both transports.
	ReadBufferSize int
	// MaxFrameSize bounds a single inbound frame.
	MaxFrameSize int
}

// DefaultConfig returns a Config with default timeouts and buffer sizes.
//
// Parameters:
//   - address: The "host:port" to connect to
//   - username: The player name to join with
//
// Returns:
//   - A Config with ConnectionTimeout 10s, WriteTimeout 10s and 4096 byte buffers
func DefaultConfig(address, username string) Config {
	return Config{
		Address:           address,
		Username:          username,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    4096,
		MaxFrameSize:      packet.DefaultMaxFrameSize,
	}
}

// Client is safe for concurrent use.
type Client struct {
	config   Config
	logger   logger.Logger
	handlers *safemap.SafeMap[packet.ServerPacket, Handler]

	mu      sync.RWMutex
	conn    net.Conn
	udp     *net.UDPConn
	state   ConnectionState
	id      int
	onState StateHandler
	closed  bool

	writeMu  sync.Mutex
	welcomed chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a client in the Disconnected state.
func New(config Config, l logger.Logger) *Client {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 4096
	}

	if l == nil {
		l = logger.Nop()
	}

	return &Client{
		config:   config,
		logger:   l.With(logger.Field{Key: "component", Value: "gameclient"}),
		handlers: safemap.NewSafeMap[packet.ServerPacket, Handler](),
		state:    Disconnected,
		welcomed: make(chan struct{}),
		lost:     make(chan struct{}),
	}
}

// On registers the handler for kind, replacing any previous one. Pass nil to
// remove it. Welcome is answered by the client itself before its handler
// runs.
func (c *Client) On(kind packet.ServerPacket, h Handler) {
	if h == nil {
		c.handlers.Delete(kind)
		return
	}

	c.handlers.Store(kind, h)
}

// OnState registers the state change handler.
func (c *Client) OnState(h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = h
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ID returns the slot id assigned by Welcome, or 0 before it arrives.
func (c *Client) ID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Done is closed when the stream connection ends for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.lost
}

// Connect dials the stream transport and starts reading. The handshake then
// proceeds in the background; use WaitWelcome to block until it completes.
// A Client connects at most once.
//
// Returns:
//   - An error if the client is closed, already connected, or the dial fails
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("client is closed")
	}
	if c.state != Disconnected || c.conn != nil {
		c.mu.Unlock()
		return errors.New("client already connected once")
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		return fmt.Errorf("connecting to %s: %w", c.config.Address, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

// WaitWelcome blocks until the handshake is complete.
//
// Returns:
//   - The assigned slot id
//   - An error if ctx ends or the connection is lost first
func (c *Client) WaitWelcome(ctx context.Context) (int, error) {
	select {
	case <-c.welcomed:
		return c.ID(), nil
	case <-c.lost:
		return 0, ErrNotConnected
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SendStream sends a packet over the stream transport.
func (c *Client) SendStream(kind packet.ClientPacket, write func(p *packet.Packet)) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	p := packet.NewWithType(int32(kind))
	if write != nil {
		write(p)
	}
	p.InsertLength()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	_, err := conn.Write(p.Bytes())
	return err
}

// SendDatagram sends a packet over the datagram transport, prefixed with the
// client's slot id.
func (c *Client) SendDatagram(kind packet.ClientPacket, write func(p *packet.Packet)) error {
	c.mu.RLock()
	udp, id := c.udp, c.id
	c.mu.RUnlock()

	if udp == nil {
		return ErrNotConnected
	}

	p := packet.NewWithType(int32(kind))
	if write != nil {
		write(p)
	}
	p.InsertLength()

	out := packet.New()
	out.WriteInt32(int32(id))
	out.WriteBytes(p.Bytes())

	_, err := udp.Write(out.Bytes())
	return err
}

// SendMovement sends the input state and view rotation over the datagram
// transport.
func (c *Client) SendMovement(inputs []bool, rotation packet.Quaternion) error {
	return c.SendDatagram(packet.PlayerMovement, func(p *packet.Packet) {
		p.WriteInt32(int32(len(inputs)))
		for _, in := range inputs {
			p.WriteBool(in)
		}
		p.WriteQuaternion(rotation)
	})
}

// SendShoot fires along direction over the stream transport.
func (c *Client) SendShoot(direction packet.Vector3) error {
	return c.SendStream(packet.PlayerShoot, func(p *packet.Packet) {
		p.WriteVector3(direction)
	})
}

// Close shuts down both transports and waits for the read goroutines.
// Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	if c.udp != nil {
		_ = c.udp.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.setState(Closed, nil)

	return err
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()
	defer c.connectionLost()

	framer := packet.NewFramer(c.config.MaxFrameSize)
	buffer := make([]byte, c.config.ReadBufferSize)

	for {
		n, err := conn.Read(buffer)
		if err != nil {
			if !c.isClosed() {
				c.setState(Disconnected, err)
			}
			return
		}

		frames, err := framer.Feed(buffer[:n])
		if err != nil {
			c.logger.Error("corrupt stream from server", logger.Field{Key: "error", Value: err})
			c.setState(Disconnected, err)
			return
		}

		for _, frame := range frames {
			c.deliver(frame, true)
		}
	}
}

func (c *Client) datagramLoop(udp *net.UDPConn) {
	defer c.wg.Done()

	// Room for a length prefix plus the largest frame a datagram can carry.
	size := c.config.MaxFrameSize
	if size <= 0 {
		size = packet.DefaultMaxFrameSize
	}
	size = min(size+4, 65507)

	buffer := make([]byte, max(size, c.config.ReadBufferSize))
	for {
		n, err := udp.Read(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || c.isClosed() {
				return
			}

			// ICMP port unreachable and similar transient errors.
			c.logger.Debug("datagram read error", logger.Field{Key: "error", Value: err})
			continue
		}

		body, err := packet.Frame(packet.FromBytes(buffer[:n]))
		if err != nil {
			c.logger.Debug("malformed datagram", logger.Field{Key: "error", Value: err})
			continue
		}

		c.deliver(body, false)
	}
}

func (c *Client) deliver(frame []byte, stream bool) {
	p := packet.FromBytes(frame)
	typ, err := p.ReadInt32()
	if err != nil {
		return
	}

	kind := packet.ServerPacket(typ)
	if kind == packet.Welcome && stream {
		if err := c.welcome(p); err != nil {
			c.logger.Error("handshake failed", logger.Field{Key: "error", Value: err})
			return
		}
		p = packet.FromBytes(frame)
		_, _ = p.ReadInt32()
	}

	if h, ok := c.handlers.Load(kind); ok {
		h(p)
	}
}

// welcome answers Welcome with WelcomeReceived and binds the datagram
// endpoint with an id-only datagram.
func (c *Client) welcome(p *packet.Packet) error {
	select {
	case <-c.welcomed:
		return errors.New("duplicate Welcome")
	default:
	}

	msg, err := p.ReadString()
	if err != nil {
		return err
	}

	id, err := p.ReadInt32()
	if err != nil {
		return err
	}

	c.logger.Info("message from server",
		logger.Field{Key: "message", Value: msg},
		logger.Field{Key: "slot", Value: id},
	)

	c.mu.Lock()
	c.id = int(id)
	c.mu.Unlock()

	err = c.SendStream(packet.WelcomeReceived, func(p *packet.Packet) {
		p.WriteInt32(id)
		p.WriteString(c.config.Username)
	})
	if err != nil {
		return fmt.Errorf("sending WelcomeReceived: %w", err)
	}

	datagramAddr := c.config.DatagramAddress
	if datagramAddr == "" {
		datagramAddr = c.config.Address
	}

	raddr, err := net.ResolveUDPAddr("udp", datagramAddr)
	if err != nil {
		return err
	}

	udp, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("opening datagram socket: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = udp.Close()
		return errors.New("client is closed")
	}
	c.udp = udp
	c.mu.Unlock()

	handshake := packet.New()
	handshake.WriteInt32(id)
	if _, err := udp.Write(handshake.Bytes()); err != nil {
		return fmt.Errorf("binding datagram endpoint: %w", err)
	}

	c.wg.Add(1)
	go c.datagramLoop(udp)

	c.setState(InGame, nil)
	close(c.welcomed)

	return nil
}

func (c *Client) connectionLost() {
	c.lostOnce.Do(func() {
		close(c.lost)
	})

	c.mu.Lock()
	udp := c.udp
	c.mu.Unlock()

	if udp != nil {
		_ = udp.Close()
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	h := c.onState
	c.mu.Unlock()

	if h != nil {
		h(state, err)
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
