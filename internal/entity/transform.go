package entity

import "github.com/go-gl/mathgl/mgl32"

// World axes. Front is +X, right is +Y and up is +Z.
var (
	WorldFront = mgl32.Vec3{1, 0, 0}
	WorldRight = mgl32.Vec3{0, 1, 0}
	WorldUp    = mgl32.Vec3{0, 0, 1}
)

// Transform is a character's position and horizontal heading.
type Transform struct {
	Position mgl32.Vec3
	Heading  mgl32.Quat
}

func NewTransform() Transform {
	return Transform{Heading: mgl32.QuatIdent()}
}

// Forward is the heading applied to the world front axis.
func (t Transform) Forward() mgl32.Vec3 {
	return t.Heading.Rotate(WorldFront)
}

// Right is the heading applied to the world right axis.
func (t Transform) Right() mgl32.Vec3 {
	return t.Heading.Rotate(WorldRight)
}
