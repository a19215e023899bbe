package packet

import "fmt"

// ServerPacket identifies a packet sent from the server to a client.
type ServerPacket int32

const (
	Welcome ServerPacket = iota + 1
	SpawnPlayer
	PlayerPosition
	PlayerRotation
	PlayerDisconnected
	PlayerHealth
	PlayerRespawned
)

// String returns the packet name.
func (t ServerPacket) String() string {
	switch t {
	case Welcome:
		return "Welcome"
	case SpawnPlayer:
		return "SpawnPlayer"
	case PlayerPosition:
		return "PlayerPosition"
	case PlayerRotation:
		return "PlayerRotation"
	case PlayerDisconnected:
		return "PlayerDisconnected"
	case PlayerHealth:
		return "PlayerHealth"
	case PlayerRespawned:
		return "PlayerRespawned"
	default:
		return fmt.Sprintf("ServerPacket(%d)", int32(t))
	}
}

// ClientPacket identifies a packet sent from a client to the server.
type ClientPacket int32

const (
	WelcomeReceived ClientPacket = iota + 1
	PlayerMovement
	PlayerShoot
)

// ClientPackets lists every packet a client may send. Dispatch tables are
// validated against it.
var ClientPackets = []ClientPacket{WelcomeReceived, PlayerMovement, PlayerShoot}

// String returns the packet name.
func (t ClientPacket) String() string {
	switch t {
	case WelcomeReceived:
		return "WelcomeReceived"
	case PlayerMovement:
		return "PlayerMovement"
	case PlayerShoot:
		return "PlayerShoot"
	default:
		return fmt.Sprintf("ClientPacket(%d)", int32(t))
	}
}
