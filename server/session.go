package server

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/metrics"
	"github.com/cyberinferno/go-gameserver/packet"
)

const writeTimeout = 10 * time.Second

// Disconnect reasons, also used as metric labels.
const (
	ReasonEOF        = "eof"
	ReasonReadError  = "read_error"
	ReasonWriteError = "write_error"
	ReasonCorrupt    = "corrupt_frame"
	ReasonIdle       = "idle"
	ReasonKicked     = "kicked"
	ReasonShutdown   = "shutdown"
)

// Entity is the game object a collaborator creates for a session once the
// client has completed the welcome handshake.
type Entity interface {
	Position() packet.Vector3
	Rotation() packet.Quaternion
	Health() float32
}

type endpointClaim int

const (
	claimNoConn endpointClaim = iota
	claimBound
	claimMatch
	claimMismatch
)

// Session is one player slot. The slot outlives any single connection: a
// connection binds to it, and a disconnect returns it to the pool.
//
// Transport state (conn, endpoint, generation) is guarded by mu and may be
// read from any goroutine. username and entity belong to the tick goroutine.
type Session struct {
	id  int
	srv *Server

	mu          sync.Mutex
	conn        *net.TCPConn
	endpoint    netip.AddrPort
	generation  uint64
	outbox      chan []byte
	done        chan struct{}
	connectedAt time.Time

	username string
	entity   Entity
}

func newSession(id int, srv *Server) *Session {
	return &Session{id: id, srv: srv}
}

// ID returns the slot id, in [1, MaxPlayers].
func (s *Session) ID() int {
	return s.id
}

// Connected reports whether a stream connection currently holds the slot.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Generation returns the id of the connection holding the slot, or of the
// last one if the slot is free.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// RemoteAddr returns the stream peer address, or "" when the slot is free.
func (s *Session) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

// Endpoint returns the bound datagram peer, invalid until the first datagram
// from the client arrives.
func (s *Session) Endpoint() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Username returns the name sent in WelcomeReceived. Tick goroutine only.
func (s *Session) Username() string {
	return s.username
}

// Entity returns the game object of an in-game session. Tick goroutine only.
func (s *Session) Entity() Entity {
	return s.entity
}

// holder returns the generation of the connection holding the slot.
func (s *Session) holder() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation, s.conn != nil
}

// current reports whether connection gen still holds the slot.
func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.generation == gen
}

// bind attaches conn to a free slot and starts its read and write goroutines.
//
// Returns:
//   - The new connection generation
//   - false if the slot is already taken
func (s *Session) bind(conn *net.TCPConn) (uint64, bool) {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return 0, false
	}

	cfg := s.srv.cfg
	_ = conn.SetReadBuffer(cfg.BufferSize)
	_ = conn.SetWriteBuffer(cfg.BufferSize)

	gen := s.srv.generations.Id()
	outbox := make(chan []byte, cfg.OutboxSize)
	done := make(chan struct{})

	s.conn = conn
	s.endpoint = netip.AddrPort{}
	s.generation = gen
	s.outbox = outbox
	s.done = done
	s.connectedAt = time.Now()
	s.mu.Unlock()

	log := s.srv.logger.With(
		logger.Field{Key: "slot", Value: s.id},
		logger.Field{Key: "remote", Value: conn.RemoteAddr().String()},
	)

	go s.readLoop(conn, gen, log)
	go s.writeLoop(conn, gen, outbox, done, log)

	return gen, true
}

// release detaches the current connection when gen matches it, or whatever
// connection holds the slot when gen is 0. Repeated and stale calls are
// no-ops.
//
// Returns:
//   - The remote address of the released connection
//   - false if nothing was released
func (s *Session) release(gen uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || (gen != 0 && gen != s.generation) {
		return "", false
	}

	remote := s.conn.RemoteAddr().String()
	_ = s.conn.Close()
	close(s.done)

	s.conn = nil
	s.endpoint = netip.AddrPort{}
	s.outbox = nil
	s.done = nil

	return remote, true
}

// claimEndpoint correlates a datagram from `from` with this slot. The first
// datagram after a connection binds its endpoint; afterwards only that
// endpoint is accepted.
func (s *Session) claimEndpoint(from netip.AddrPort) (uint64, endpointClaim) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.conn == nil:
		return 0, claimNoConn
	case !s.endpoint.IsValid():
		s.endpoint = from
		return s.generation, claimBound
	case s.endpoint != from:
		return 0, claimMismatch
	default:
		return s.generation, claimMatch
	}
}

// sendStream queues data for the writer goroutine without blocking.
//
// Returns:
//   - false if the slot is free or the outbox is full; the data is dropped
func (s *Session) sendStream(data []byte) bool {
	s.mu.Lock()
	outbox := s.outbox
	s.mu.Unlock()

	if outbox == nil {
		return false
	}

	select {
	case outbox <- data:
		s.srv.metrics.PacketSent(metrics.Stream)
		return true
	default:
		s.srv.metrics.SendDropped()
		s.srv.logger.Warn("stream send dropped, outbox full", logger.Field{Key: "slot", Value: s.id})
		return false
	}
}

// sendDatagram writes data to the bound endpoint through the shared socket.
//
// Returns:
//   - false if no endpoint is bound or the write failed
func (s *Session) sendDatagram(data []byte) bool {
	ep := s.Endpoint()
	if !ep.IsValid() {
		return false
	}

	return s.srv.writeDatagram(data, ep)
}

func (s *Session) readLoop(conn *net.TCPConn, gen uint64, log logger.Logger) {
	framer := packet.NewFramer(s.srv.cfg.MaxFrameSize)
	buf := make([]byte, s.srv.cfg.BufferSize)

	for {
		n, err := conn.Read(buf)
		if n == 0 || err != nil {
			reason := ReasonEOF
			if err != nil && !errors.Is(err, io.EOF) {
				reason = ReasonReadError
				if !errors.Is(err, net.ErrClosed) {
					log.Debug("error receiving stream data", logger.Field{Key: "error", Value: err})
				}
			}

			s.srv.deferDisconnect(s.id, gen, reason)
			return
		}

		s.srv.liveness.Touch(s.id, gen)

		frames, err := framer.Feed(buf[:n])
		if err != nil {
			log.Warn("dropping connection with corrupt framing", logger.Field{Key: "error", Value: err})
			s.srv.deferDisconnect(s.id, gen, ReasonCorrupt)
			return
		}

		for _, frame := range frames {
			s.srv.metrics.FrameReceived(metrics.Stream)
			s.srv.deferDispatch(s, gen, frame)
		}
	}
}

func (s *Session) writeLoop(conn *net.TCPConn, gen uint64, outbox <-chan []byte, done <-chan struct{}, log logger.Logger) {
	for {
		select {
		case <-done:
			return
		case data := <-outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := conn.Write(data); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					log.Warn("error sending stream data", logger.Field{Key: "error", Value: err})
				}

				s.srv.deferDisconnect(s.id, gen, ReasonWriteError)
				return
			}
		}
	}
}
