package game

import (
	"math"

	"github.com/cyberinferno/go-gameserver/packet"
)

// HitScanner resolves which player, if any, a shot hits.
type HitScanner interface {
	// Scan casts a ray from origin along direction (unit length) up to
	// maxDistance and returns the nearest target it hits.
	Scan(origin, direction packet.Vector3, maxDistance float32, targets []*Player) (*Player, bool)
}

// SphereScanner treats every player as a sphere centred half a unit above
// its position.
type SphereScanner struct {
	Radius float32
}

// Scan implements HitScanner.
func (s SphereScanner) Scan(origin, direction packet.Vector3, maxDistance float32, targets []*Player) (*Player, bool) {
	var (
		hit     *Player
		nearest = float32(math.MaxFloat32)
	)

	for _, target := range targets {
		centre := add(target.Position(), packet.Vector3{Y: 0.5})
		d, ok := raySphere(origin, direction, centre, s.Radius)
		if !ok || d > maxDistance || d >= nearest {
			continue
		}

		hit, nearest = target, d
	}

	return hit, hit != nil
}

// raySphere returns the distance along the ray to the first intersection
// with the sphere. The ray starting inside the sphere counts as a hit at 0.
func raySphere(origin, direction, centre packet.Vector3, radius float32) (float32, bool) {
	oc := sub(origin, centre)
	b := dot(oc, direction)
	c := dot(oc, oc) - radius*radius
	if c <= 0 {
		return 0, true
	}

	disc := b*b - c
	if b > 0 || disc < 0 {
		return 0, false
	}

	return -b - float32(math.Sqrt(float64(disc))), true
}
