package server

import (
	"context"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/packet"
)

// welcomeReceived completes the handshake: the client echoes its id and
// sends a username, and the session enters the game.
func (s *Server) welcomeReceived(from int, p *packet.Packet) error {
	claimed, err := p.ReadInt32()
	if err != nil {
		return err
	}

	username, err := p.ReadString()
	if err != nil {
		return err
	}

	sess := s.slots[from]
	log := s.logger.With(
		logger.Field{Key: "slot", Value: from},
		logger.Field{Key: "remote", Value: sess.RemoteAddr()},
		logger.Field{Key: "username", Value: username},
	)

	log.Info("connected successfully and is now a player")
	if int(claimed) != from {
		log.Warn("player has assumed the wrong client id", logger.Field{Key: "claimed", Value: claimed})
	}

	if sess.entity != nil {
		log.Warn("player is already in game")
		return nil
	}

	s.sendIntoGame(sess, username)
	return nil
}

// sendIntoGame creates the entity for sess, shows it every existing player
// and announces it to all players including itself.
func (s *Server) sendIntoGame(sess *Session, username string) {
	sess.username = username
	sess.entity = s.newEntity(sess.id, username)

	for _, other := range s.slots[1:] {
		if other.entity != nil && other.id != sess.id {
			s.SpawnPlayer(sess.id, other.id, other.username, other.entity.Position(), other.entity.Rotation())
		}
	}

	pos, rot := sess.entity.Position(), sess.entity.Rotation()
	for _, other := range s.slots[1:] {
		if other.entity != nil {
			s.SpawnPlayer(other.id, sess.id, username, pos, rot)
		}
	}

	if err := s.presence.Join(context.Background(), sess.id, username); err != nil {
		s.logger.Debug("presence join not recorded", logger.Field{Key: "error", Value: err})
	}
}
