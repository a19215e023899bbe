// Package game is the reference gameplay collaborator of the server: it owns
// the player entities, applies client input on every tick and resolves shots.
// Everything in it runs on the server's tick goroutine.
package game

import (
	"time"

	"github.com/cyberinferno/go-gameserver/packet"
)

// Gameplay tuning. Distances are world units, speeds units per second.
const (
	// MaxHealth is the health of a freshly spawned player.
	MaxHealth float32 = 100
	// ShotDamage is the health removed by one hit.
	ShotDamage float32 = 50
	// ShotRange is the farthest a shot can hit.
	ShotRange float32 = 25
	// MoveSpeed is the horizontal walking speed.
	MoveSpeed float32 = 5
	// JumpSpeed is the upward velocity given by a jump from the ground.
	JumpSpeed float32 = 5
	// Gravity is the vertical acceleration in units per second squared.
	Gravity float32 = -9.81
	// EyeHeight is the offset from position to the shot origin.
	EyeHeight float32 = 0.5
	// RespawnDelay is how long a killed player waits before respawning.
	RespawnDelay = 5 * time.Second
)

// Input slots of the PlayerMovement packet.
const (
	InputForward = iota
	InputBack
	InputLeft
	InputRight
	InputJump
	InputCount
)

var (
	// SpawnPoint is where a player enters the game.
	SpawnPoint = packet.Vector3{Y: 0.5}
	// RespawnPoint is where a killed player waits to respawn.
	RespawnPoint = packet.Vector3{Y: 25}
)

// Player is the entity of one in-game session. Ground is the plane y = 0.
type Player struct {
	id       int
	username string

	position  packet.Vector3
	rotation  packet.Quaternion
	health    float32
	inputs    [InputCount]bool
	yVelocity float32
	respawnIn time.Duration
}

// NewPlayer creates a player at SpawnPoint with full health.
func NewPlayer(id int, username string) *Player {
	return &Player{
		id:       id,
		username: username,
		position: SpawnPoint,
		rotation: packet.IdentityQuaternion,
		health:   MaxHealth,
	}
}

// ID returns the session slot of the player.
func (p *Player) ID() int { return p.id }

// Username returns the name the client joined with.
func (p *Player) Username() string { return p.username }

// Position returns the current position.
func (p *Player) Position() packet.Vector3 { return p.position }

// Rotation returns the last view rotation sent by the client.
func (p *Player) Rotation() packet.Quaternion { return p.rotation }

// Health returns the remaining health, 0 while waiting to respawn.
func (p *Player) Health() float32 { return p.health }

// Alive reports whether the player has health left.
func (p *Player) Alive() bool {
	return p.health > 0
}

// Inputs returns the most recent input state.
func (p *Player) Inputs() [InputCount]bool {
	return p.inputs
}

// SetInput stores the client's input state and view rotation. Inputs beyond
// InputCount are ignored; missing ones read as released.
func (p *Player) SetInput(inputs []bool, rotation packet.Quaternion) {
	p.inputs = [InputCount]bool{}
	copy(p.inputs[:], inputs)
	p.rotation = rotation
}

// move advances the player by dt according to its inputs.
func (p *Player) move(dt time.Duration) {
	seconds := float32(dt.Seconds())

	var x, z float32
	if p.inputs[InputForward] {
		z++
	}
	if p.inputs[InputBack] {
		z--
	}
	if p.inputs[InputLeft] {
		x--
	}
	if p.inputs[InputRight] {
		x++
	}

	right := rotate(p.rotation, packet.Vector3{X: 1})
	forward := rotate(p.rotation, packet.Vector3{Z: 1})
	step := add(scale(right, x), scale(forward, z))
	step = scale(step, MoveSpeed*seconds)

	grounded := p.position.Y <= 0
	if grounded {
		p.yVelocity = 0
		if p.inputs[InputJump] {
			p.yVelocity = JumpSpeed
		}
	}
	p.yVelocity += Gravity * seconds

	p.position.X += step.X
	p.position.Z += step.Z
	p.position.Y += p.yVelocity * seconds
	if p.position.Y < 0 {
		p.position.Y = 0
	}
}

// damage applies amount and reports whether the hit was lethal. Dead
// players take no damage.
func (p *Player) damage(amount float32) (applied, killed bool) {
	if !p.Alive() {
		return false, false
	}

	p.health -= amount
	if p.health > 0 {
		return true, false
	}

	p.health = 0
	p.position = RespawnPoint
	p.yVelocity = 0
	p.respawnIn = RespawnDelay
	return true, true
}

// eye is the origin of the player's shots.
func (p *Player) eye() packet.Vector3 {
	return add(p.position, packet.Vector3{Y: EyeHeight})
}
