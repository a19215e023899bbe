package game

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/packet"
	"github.com/cyberinferno/go-gameserver/server"
)

// maxInputs bounds the input count a PlayerMovement packet may declare.
const maxInputs = 64

// Broadcaster is the part of the outbound protocol the world uses.
type Broadcaster interface {
	PlayerPosition(id int, pos packet.Vector3)
	PlayerRotation(id int, rot packet.Quaternion)
	PlayerHealth(id int, health float32)
	PlayerRespawned(id int)
}

// World holds every in-game player.
type World struct {
	out     Broadcaster
	scanner HitScanner
	logger  logger.Logger
	players map[int]*Player
}

// Option customizes a World.
type Option func(*World)

// WithHitScanner replaces the default SphereScanner.
func WithHitScanner(s HitScanner) Option {
	return func(w *World) {
		w.scanner = s
	}
}

// NewWorld creates an empty world. Call Attach before the server runs.
func NewWorld(l logger.Logger, opts ...Option) *World {
	w := &World{
		out:     discard{},
		scanner: SphereScanner{Radius: 0.5},
		logger:  l.With(logger.Field{Key: "component", Value: "game"}),
		players: make(map[int]*Player),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Attach sets the outbound protocol, normally the *server.Server.
func (w *World) Attach(out Broadcaster) {
	w.out = out
}

// Options returns the server collaborator hooks backed by this world.
func (w *World) Options() server.Options {
	return server.Options{
		NewEntity:     w.Spawn,
		DestroyEntity: w.Destroy,
		Handlers:      w.Handlers(),
		OnTick:        w.Tick,
	}
}

// Player returns the player in slot id.
func (w *World) Player(id int) (*Player, bool) {
	p, ok := w.players[id]
	return p, ok
}

// Len returns the number of players in game.
func (w *World) Len() int {
	return len(w.players)
}

// Spawn creates the player for slot id.
func (w *World) Spawn(id int, username string) server.Entity {
	p := NewPlayer(id, username)
	w.players[id] = p

	w.logger.Info("player spawned",
		logger.Field{Key: "slot", Value: id},
		logger.Field{Key: "username", Value: username},
	)

	return p
}

// Destroy removes the player for slot id.
func (w *World) Destroy(id int, _ server.Entity) {
	delete(w.players, id)
	w.logger.Info("player removed", logger.Field{Key: "slot", Value: id})
}

// Handlers returns the packet handlers for the gameplay client packets.
func (w *World) Handlers() map[packet.ClientPacket]server.Handler {
	return map[packet.ClientPacket]server.Handler{
		packet.PlayerMovement: w.handleMovement,
		packet.PlayerShoot:    w.handleShoot,
	}
}

// handleMovement reads [int32 n][n bools][quaternion].
func (w *World) handleMovement(from int, p *packet.Packet) error {
	n, err := p.ReadInt32()
	if err != nil {
		return err
	}

	if n < 0 || n > maxInputs {
		return fmt.Errorf("invalid input count %d", n)
	}

	inputs := make([]bool, n)
	for i := range inputs {
		if inputs[i], err = p.ReadBool(); err != nil {
			return err
		}
	}

	rotation, err := p.ReadQuaternion()
	if err != nil {
		return err
	}

	if player, ok := w.players[from]; ok {
		player.SetInput(inputs, rotation)
	}

	return nil
}

// handleShoot reads the view direction of a shot.
func (w *World) handleShoot(from int, p *packet.Packet) error {
	direction, err := p.ReadVector3()
	if err != nil {
		return err
	}

	if player, ok := w.players[from]; ok {
		w.Shoot(player, direction)
	}

	return nil
}

// Shoot fires from the shooter's eye along direction and damages the first
// player hit within ShotRange.
func (w *World) Shoot(shooter *Player, direction packet.Vector3) {
	if !shooter.Alive() {
		return
	}

	dir, ok := normalize(direction)
	if !ok {
		return
	}

	targets := make([]*Player, 0, len(w.players))
	for _, id := range w.ids() {
		if id != shooter.id {
			targets = append(targets, w.players[id])
		}
	}

	target, hit := w.scanner.Scan(shooter.eye(), dir, ShotRange, targets)
	if !hit {
		return
	}

	w.Damage(target.id, ShotDamage)
}

// Damage takes amount from player id. A lethal hit moves the player to
// RespawnPoint and starts the respawn countdown.
func (w *World) Damage(id int, amount float32) {
	player, ok := w.players[id]
	if !ok {
		return
	}

	applied, killed := player.damage(amount)
	if !applied {
		return
	}

	if killed {
		w.logger.Info("player killed", logger.Field{Key: "slot", Value: id})
		w.out.PlayerPosition(id, player.position)
	}

	w.out.PlayerHealth(id, player.health)
}

// Tick moves every living player, broadcasts its transform and counts down
// respawns. Players are visited in ascending slot order.
func (w *World) Tick(dt time.Duration) {
	for _, id := range w.ids() {
		player := w.players[id]

		if !player.Alive() {
			player.respawnIn -= dt
			if player.respawnIn <= 0 {
				player.respawnIn = 0
				player.health = MaxHealth
				w.out.PlayerRespawned(id)
			}
			continue
		}

		player.move(dt)
		w.out.PlayerPosition(id, player.position)
		w.out.PlayerRotation(id, player.rotation)
	}
}

func (w *World) ids() []int {
	return slices.Sorted(maps.Keys(w.players))
}

type discard struct{}

func (discard) PlayerPosition(int, packet.Vector3)    {}
func (discard) PlayerRotation(int, packet.Quaternion) {}
func (discard) PlayerHealth(int, float32)             {}
func (discard) PlayerRespawned(int)                   {}
