package game

import (
	"math"

	"github.com/cyberinferno/go-gameserver/packet"
)

func add(a, b packet.Vector3) packet.Vector3 {
	return packet.Vector3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

func sub(a, b packet.Vector3) packet.Vector3 {
	return packet.Vector3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func scale(v packet.Vector3, f float32) packet.Vector3 {
	return packet.Vector3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

func dot(a, b packet.Vector3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func cross(a, b packet.Vector3) packet.Vector3 {
	return packet.Vector3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func length(v packet.Vector3) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}

func normalize(v packet.Vector3) (packet.Vector3, bool) {
	l := length(v)
	if l == 0 {
		return packet.Vector3{}, false
	}
	return scale(v, 1/l), true
}

// rotate applies the rotation q to v.
func rotate(q packet.Quaternion, v packet.Vector3) packet.Vector3 {
	u := packet.Vector3{X: q.X, Y: q.Y, Z: q.Z}
	t := scale(cross(u, v), 2)
	return add(add(v, scale(t, q.W)), cross(u, t))
}
