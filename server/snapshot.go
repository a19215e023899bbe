package server

import (
	"context"
	"time"

	"github.com/cyberinferno/go-gameserver/packet"
)

// SessionInfo describes one occupied slot.
type SessionInfo struct {
	ID          int             `json:"id"`
	Username    string          `json:"username,omitempty"`
	Remote      string          `json:"remote"`
	Datagram    string          `json:"datagram,omitempty"`
	InGame      bool            `json:"in_game"`
	Position    *packet.Vector3 `json:"position,omitempty"`
	Health      float32         `json:"health,omitempty"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// Sessions returns the occupied slots in ascending order. The snapshot is
// taken on the tick goroutine, so the call blocks until the next tick or
// until ctx ends.
func (s *Server) Sessions(ctx context.Context) ([]SessionInfo, error) {
	result := make(chan []SessionInfo, 1)
	s.queue.Enqueue(func() { result <- s.snapshot() })

	select {
	case infos := <-result:
		return infos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// snapshot must run on the tick goroutine.
func (s *Server) snapshot() []SessionInfo {
	infos := make([]SessionInfo, 0, len(s.slots)-1)

	for _, sess := range s.slots[1:] {
		sess.mu.Lock()
		if sess.conn == nil {
			sess.mu.Unlock()
			continue
		}

		info := SessionInfo{
			ID:          sess.id,
			Username:    sess.username,
			Remote:      sess.conn.RemoteAddr().String(),
			ConnectedAt: sess.connectedAt,
		}
		if sess.endpoint.IsValid() {
			info.Datagram = sess.endpoint.String()
		}
		sess.mu.Unlock()

		if sess.entity != nil {
			pos := sess.entity.Position()
			info.InGame = true
			info.Position = &pos
			info.Health = sess.entity.Health()
		}

		infos = append(infos, info)
	}

	return infos
}
