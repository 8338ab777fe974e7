package conflate

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, D: 1}
}

// IsIdentity reports whether m leaves every point unchanged.
func (m AffineMatrix) IsIdentity() bool {
	return m == Identity()
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, Tx: tx, D: 1, Ty: ty}
}

// RotationDeg creates a rotation transform around the origin (degrees, CCW)
func RotationDeg(degrees float64) AffineMatrix {
	rad := degrees * math.Pi / 180.0
	cos, sin := math.Cos(rad), math.Sin(rad)
	return AffineMatrix{A: cos, B: -sin, C: sin, D: cos}
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// RotationAround creates a rotation by degrees around pivot followed by a
// translation of (tx, ty).
func RotationAround(degrees float64, pivot orb.Point, tx, ty float64) AffineMatrix {
	toOrigin := Translation(-pivot[0], -pivot[1])
	back := Translation(pivot[0]+tx, pivot[1]+ty)
	return MultiplyMatrices(back, MultiplyMatrices(RotationDeg(degrees), toOrigin))
}

// TransformPoint applies an affine transform to a point
func TransformPoint(p orb.Point, m AffineMatrix) orb.Point {
	return orb.Point{
		m.A*p[0] + m.B*p[1] + m.Tx,
		m.C*p[0] + m.D*p[1] + m.Ty,
	}
}

// TransformGeometry returns a transformed copy of g. g itself is untouched.
func TransformGeometry(g orb.Geometry, m AffineMatrix) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		return TransformPoint(p, m)
	})
}

// Centroid returns the centroid of g: area-weighted for polygons,
// length-weighted for lines, the mean for point sets.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}
