package geom

import "math"

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func V(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Size is an axis-aligned extent. Width spans X, Height spans Y.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

// Contains reports whether p lies inside the rectangle of size s centered on c.
func (s Size) Contains(c, p Vec2) bool {
	d := p.Sub(c)
	return math.Abs(d.X) <= s.Width/2 && math.Abs(d.Y) <= s.Height/2
}
