package server

import (
	"errors"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/packet"
)

// ErrUnknownPacket is returned by dispatch for a packet type id with no
// handler.
var ErrUnknownPacket = errors.New("unknown packet type")

// Handler processes one inbound packet on the tick goroutine. from is the
// slot id of the sender; p is positioned just after the packet type id.
// A returned error is logged and the packet dropped; the session stays.
type Handler func(from int, p *packet.Packet) error

// buildHandlers merges the server's own handlers with the collaborator's and
// checks that every client packet has exactly one handler.
func buildHandlers(core, extra map[packet.ClientPacket]Handler) (map[packet.ClientPacket]Handler, error) {
	table := make(map[packet.ClientPacket]Handler, len(core)+len(extra))
	for kind, h := range core {
		table[kind] = h
	}

	for kind, h := range extra {
		if !slices.Contains(packet.ClientPackets, kind) {
			return nil, fmt.Errorf("handler registered for unknown client packet %s", kind)
		}

		if _, dup := table[kind]; dup {
			return nil, fmt.Errorf("duplicate handler for %s", kind)
		}

		if h == nil {
			return nil, fmt.Errorf("nil handler for %s", kind)
		}

		table[kind] = h
	}

	for _, kind := range packet.ClientPackets {
		if _, ok := table[kind]; !ok {
			return nil, fmt.Errorf("no handler for %s", kind)
		}
	}

	return table, nil
}

// deferDispatch queues frame for dispatch on the tick goroutine. The frame
// is dropped if the connection that received it no longer holds the slot by
// then.
func (s *Server) deferDispatch(sess *Session, gen uint64, frame []byte) {
	s.queue.Enqueue(func() {
		if !sess.current(gen) {
			return
		}

		if err := s.dispatch(sess.id, frame); err != nil {
			s.logger.Warn("packet dropped",
				logger.Field{Key: "slot", Value: sess.id},
				logger.Field{Key: "error", Value: err},
			)
		}
	})
}

// dispatch routes one frame body ([int32 type][payload]) to its handler.
// Handler errors and panics are returned rather than propagated.
func (s *Server) dispatch(from int, frame []byte) error {
	p := packet.FromBytes(frame)

	typ, err := p.ReadInt32()
	if err != nil {
		s.metrics.DispatchFailed("malformed")
		return fmt.Errorf("reading packet type: %w", err)
	}

	kind := packet.ClientPacket(typ)
	h, ok := s.handlers[kind]
	if !ok {
		s.metrics.DispatchFailed("unknown")
		return fmt.Errorf("%w: %d", ErrUnknownPacket, typ)
	}

	if err := s.invoke(h, from, p); err != nil {
		s.metrics.DispatchFailed(kind.String())
		return fmt.Errorf("handling %s: %w", kind, err)
	}

	return nil
}

func (s *Server) invoke(h Handler, from int, p *packet.Packet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("packet handler panicked",
				logger.Field{Key: "slot", Value: from},
				logger.Field{Key: "panic", Value: fmt.Sprint(r)},
				logger.Field{Key: "stack", Value: string(debug.Stack())},
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return h(from, p)
}
