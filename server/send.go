package server

import (
	"github.com/cyberinferno/go-gameserver/packet"
)

// The outbound protocol. Each send builds a fresh packet, prefixes its
// length and hands the same bytes to every recipient. Stream sends queue on
// the session outbox and never block; datagram sends go straight to the
// shared socket. Broadcasts visit occupied slots in ascending id order and a
// failed recipient never stops the others.

func encode(kind packet.ServerPacket, write func(p *packet.Packet)) []byte {
	p := packet.NewWithType(int32(kind))
	if write != nil {
		write(p)
	}
	p.InsertLength()
	return p.Bytes()
}

func (s *Server) sendStream(to int, data []byte) {
	if sess, ok := s.Session(to); ok {
		sess.sendStream(data)
	}
}

func (s *Server) sendDatagram(to int, data []byte) {
	if sess, ok := s.Session(to); ok {
		sess.sendDatagram(data)
	}
}

// broadcastStream sends to every connected slot except `except`; 0 excludes
// nobody.
func (s *Server) broadcastStream(data []byte, except int) {
	for _, sess := range s.slots[1:] {
		if sess.id != except {
			sess.sendStream(data)
		}
	}
}

func (s *Server) broadcastDatagram(data []byte, except int) {
	for _, sess := range s.slots[1:] {
		if sess.id != except {
			sess.sendDatagram(data)
		}
	}
}

// Welcome greets slot `to` with msg and its own id.
func (s *Server) Welcome(to int, msg string) {
	s.sendStream(to, encode(packet.Welcome, func(p *packet.Packet) {
		p.WriteString(msg)
		p.WriteInt32(int32(to))
	}))
}

// SpawnPlayer tells slot `to` to create player id.
func (s *Server) SpawnPlayer(to, id int, username string, pos packet.Vector3, rot packet.Quaternion) {
	s.sendStream(to, encode(packet.SpawnPlayer, func(p *packet.Packet) {
		p.WriteInt32(int32(id))
		p.WriteString(username)
		p.WriteVector3(pos)
		p.WriteQuaternion(rot)
	}))
}

// PlayerPosition broadcasts the position of player id to everyone.
func (s *Server) PlayerPosition(id int, pos packet.Vector3) {
	s.broadcastDatagram(encode(packet.PlayerPosition, func(p *packet.Packet) {
		p.WriteInt32(int32(id))
		p.WriteVector3(pos)
	}), 0)
}

// PlayerRotation broadcasts the rotation of player id to everyone else.
func (s *Server) PlayerRotation(id int, rot packet.Quaternion) {
	s.broadcastDatagram(encode(packet.PlayerRotation, func(p *packet.Packet) {
		p.WriteInt32(int32(id))
		p.WriteQuaternion(rot)
	}), id)
}

// PlayerDisconnected tells everyone that player id left.
func (s *Server) PlayerDisconnected(id int) {
	s.broadcastStream(encode(packet.PlayerDisconnected, func(p *packet.Packet) {
		p.WriteInt32(int32(id))
	}), 0)
}

// PlayerHealth broadcasts the health of player id.
func (s *Server) PlayerHealth(id int, health float32) {
	s.broadcastStream(encode(packet.PlayerHealth, func(p *packet.Packet) {
		p.WriteInt32(int32(id))
		p.WriteFloat32(health)
	}), 0)
}

// PlayerRespawned tells everyone that player id is alive again.
func (s *Server) PlayerRespawned(id int) {
	s.broadcastStream(encode(packet.PlayerRespawned, func(p *packet.Packet) {
		p.WriteInt32(int32(id))
	}), 0)
}
