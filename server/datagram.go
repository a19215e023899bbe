package server

import (
	"errors"
	"net"
	"net/netip"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/metrics"
	"github.com/cyberinferno/go-gameserver/packet"
)

// maxDatagramSize is the largest UDP payload over IPv4.
const maxDatagramSize = 65507

// datagramSize returns the read buffer size that holds a slot id plus a
// frame of up to MaxFrameSize bytes, so no accepted frame is truncated.
func (s *Server) datagramSize() int {
	n := s.cfg.MaxFrameSize + 8
	if n > maxDatagramSize {
		n = maxDatagramSize
	}
	if n < s.cfg.BufferSize {
		n = s.cfg.BufferSize
	}
	return n
}

// datagramLoop reads the shared UDP socket until it is closed.
func (s *Server) datagramLoop(udp *net.UDPConn) error {
	buf := make([]byte, s.datagramSize())

	for {
		n, from, err := udp.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.Running() {
				return nil
			}

			s.logger.Debug("error receiving datagram", logger.Field{Key: "error", Value: err})
			continue
		}

		s.handleDatagram(buf[:n], from)
	}
}

// handleDatagram correlates one datagram with a session and defers its frame
// for dispatch. The layout is [int32 slot id][int32 length][int32 type][payload];
// a datagram carrying only the slot id binds or refreshes the endpoint.
// Anything that does not belong to a live session is dropped silently.
//
// Returns:
//   - The metrics drop reason, or "" when the datagram was accepted
func (s *Server) handleDatagram(data []byte, from netip.AddrPort) string {
	from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

	if len(data) < 4 {
		return s.dropDatagram(metrics.DropShort, from)
	}

	p := packet.FromBytes(data)
	claimed, _ := p.ReadInt32()

	sess, ok := s.Session(int(claimed))
	if !ok {
		return s.dropDatagram(metrics.DropUnknown, from)
	}

	gen, claim := sess.claimEndpoint(from)
	switch claim {
	case claimNoConn:
		return s.dropDatagram(metrics.DropNoConn, from)
	case claimMismatch:
		return s.dropDatagram(metrics.DropSpoofed, from)
	case claimBound:
		s.logger.Debug("datagram endpoint bound",
			logger.Field{Key: "slot", Value: sess.id},
			logger.Field{Key: "endpoint", Value: from.String()},
		)
		s.liveness.Touch(sess.id, gen)
		return ""
	}

	s.liveness.Touch(sess.id, gen)

	if p.UnreadLen() == 0 {
		return ""
	}

	frame, err := packet.Frame(p)
	if err != nil || len(frame) > s.cfg.MaxFrameSize {
		return s.dropDatagram(metrics.DropMalformed, from)
	}

	s.metrics.FrameReceived(metrics.Datagram)
	s.deferDispatch(sess, gen, frame)

	return ""
}

func (s *Server) dropDatagram(reason string, from netip.AddrPort) string {
	s.metrics.DatagramDropped(reason)
	s.logger.Debug("datagram dropped",
		logger.Field{Key: "reason", Value: reason},
		logger.Field{Key: "from", Value: from.String()},
	)

	return reason
}

// writeDatagram sends data to ep through the shared socket.
func (s *Server) writeDatagram(data []byte, ep netip.AddrPort) bool {
	udp := s.udp.Load()
	if udp == nil {
		return false
	}

	if _, err := udp.WriteToUDPAddrPort(data, ep); err != nil {
		s.logger.Debug("error sending datagram",
			logger.Field{Key: "endpoint", Value: ep.String()},
			logger.Field{Key: "error", Value: err},
		)
		return false
	}

	s.metrics.PacketSent(metrics.Datagram)
	return true
}
