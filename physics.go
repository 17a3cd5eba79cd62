package texatlas

import (
	"fmt"

	"github.com/jakecoffman/cp"
)

// Vectors returns the points as chipmunk vectors. Hit boxes are centered and
// Y-up, which matches chipmunk's body-local space.
func (p HitBoxPoints) Vectors() []cp.Vector {
	out := make([]cp.Vector, len(p))
	for i, v := range p {
		out[i] = cp.Vector{X: v.X, Y: v.Y}
	}
	return out
}

// NewHitBoxShape attaches a polygon shape built from pts to body. Chipmunk
// polygons are convex, so concave outlines (typical of the detailed
// algorithm) are replaced by their convex hull. radius rounds the corners.
func NewHitBoxShape(body *cp.Body, pts HitBoxPoints, radius float64) (*cp.Shape, error) {
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: %d points", ErrEmptyHitBox, len(pts))
	}
	verts := pts.Vectors()
	return cp.NewPolyShape(body, len(verts), verts, cp.NewTransformIdentity(), radius), nil
}

// NewHitBoxBody creates a dynamic body whose moment of inertia matches the
// hit-box polygon.
func NewHitBoxBody(mass float64, pts HitBoxPoints) (*cp.Body, error) {
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: %d points", ErrEmptyHitBox, len(pts))
	}
	verts := pts.Vectors()
	moment := cp.MomentForPoly(mass, len(verts), verts, cp.Vector{}, 0)
	return cp.NewBody(mass, moment), nil
}

// HitBoxArea returns the polygon area chipmunk computes for pts, positive for
// counter-clockwise points, or 0 for an empty hit box.
func HitBoxArea(pts HitBoxPoints) float64 {
	if len(pts) < 3 {
		return 0
	}
	verts := pts.Vectors()
	return cp.AreaForPoly(len(verts), verts, 0)
}

// NewTextureShape is NewHitBoxShape for a texture's hit box.
func NewTextureShape(body *cp.Body, tex *Texture, radius float64) (*cp.Shape, error) {
	shape, err := NewHitBoxShape(body, tex.HitBoxPoints(), radius)
	if err != nil {
		return nil, fmt.Errorf("texatlas: shape for %s: %w", tex.CacheName(), err)
	}
	return shape, nil
}
