package server

import (
	"errors"
	"net"

	"github.com/cyberinferno/go-gameserver/logger"
)

// acceptLoop accepts stream connections until the listener is closed. Each
// connection is bound to the lowest free slot or closed when there is none.
func (s *Server) acceptLoop(ln *net.TCPListener) error {
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.Running() {
				return nil
			}

			s.logger.Error("accept error", logger.Field{Key: "error", Value: err})
			continue
		}

		s.accept(conn)
	}
}

// accept binds conn to a slot and greets it with Welcome.
//
// Returns:
//   - The slot id, or 0 and ErrServerFull when every slot is taken
func (s *Server) accept(conn *net.TCPConn) (int, error) {
	remote := conn.RemoteAddr().String()
	s.logger.Info("incoming connection", logger.Field{Key: "remote", Value: remote})

	for _, sess := range s.slots[1:] {
		gen, ok := sess.bind(conn)
		if !ok {
			continue
		}

		s.metrics.SessionOpened()
		s.liveness.Touch(sess.id, gen)
		s.Welcome(sess.id, s.cfg.WelcomeMessage)

		return sess.id, nil
	}

	s.metrics.SessionRejected()
	s.logger.Warn("failed to connect",
		logger.Field{Key: "remote", Value: remote},
		logger.Field{Key: "error", Value: ErrServerFull},
	)
	_ = conn.Close()

	return 0, ErrServerFull
}
