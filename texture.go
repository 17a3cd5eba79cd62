package texatlas

import (
	"fmt"
	"strings"
	"time"
)

// VertexOrder maps the four corners of a transformed texture to corners of
// its source image. Index 0..3 are upper-left, upper-right, lower-left and
// lower-right; the value at each index is the source corner drawn there.
type VertexOrder [4]uint8

// IdentityOrder draws the image untransformed.
var IdentityOrder = VertexOrder{0, 1, 2, 3}

// Transform is a lossless 90-degree rotation or mirror of a texture.
type Transform uint8

const (
	TransformFlipLeftRight    Transform = iota // mirror across the vertical axis
	TransformFlipTopBottom                     // mirror across the horizontal axis
	TransformRotate90                          // rotate 90 degrees clockwise
	TransformRotate180                         // rotate 180 degrees
	TransformRotate270                         // rotate 270 degrees clockwise
	TransformFlipDiagonal                      // transpose across the upper-left/lower-right diagonal
	TransformFlipAntiDiagonal                  // transpose across the upper-right/lower-left diagonal
)

var transformOrders = [...]VertexOrder{
	TransformFlipLeftRight:    {1, 0, 3, 2},
	TransformFlipTopBottom:    {2, 3, 0, 1},
	TransformRotate90:         {2, 0, 3, 1},
	TransformRotate180:        {3, 2, 1, 0},
	TransformRotate270:        {1, 3, 0, 2},
	TransformFlipDiagonal:     {0, 2, 1, 3},
	TransformFlipAntiDiagonal: {3, 1, 2, 0},
}

// Apply returns the order after applying t on top of o.
func (o VertexOrder) Apply(t Transform) VertexOrder {
	m := transformOrders[t]
	return VertexOrder{o[m[0]], o[m[1]], o[m[2]], o[m[3]]}
}

// SwapsAxes reports whether width and height are exchanged relative to the
// source image.
func (o VertexOrder) SwapsAxes() bool {
	// Upper-left and upper-right come from the same source row unless the
	// image was turned on its side.
	return o[0]/2 != o[1]/2
}

func (o VertexOrder) String() string {
	return fmt.Sprintf("%d%d%d%d", o[0], o[1], o[2], o[3])
}

// transformPoint maps a centered, Y-up hit-box point through t. mirror
// reports whether t reverses winding.
func transformPoint(t Transform, v Vec2) (out Vec2, mirror bool) {
	switch t {
	case TransformFlipLeftRight:
		return Vec2{-v.X, v.Y}, true
	case TransformFlipTopBottom:
		return Vec2{v.X, -v.Y}, true
	case TransformRotate90:
		return Vec2{v.Y, -v.X}, false
	case TransformRotate180:
		return Vec2{-v.X, -v.Y}, false
	case TransformRotate270:
		return Vec2{-v.Y, v.X}, false
	case TransformFlipDiagonal:
		return Vec2{-v.Y, -v.X}, true
	case TransformFlipAntiDiagonal:
		return Vec2{v.Y, v.X}, true
	}
	return v, false
}

// Transform returns the points mapped through t. Mirroring transforms
// reverse the point order so the winding stays counter-clockwise.
func (p HitBoxPoints) Transform(t Transform) HitBoxPoints {
	out := make(HitBoxPoints, len(p))
	mirror := false
	for i, v := range p {
		out[i], mirror = transformPoint(t, v)
	}
	if mirror {
		out = out.reversed()
	}
	return out
}

// CacheName derives the texture identity from the image hash, the vertex
// order and the hit-box algorithm's cache name.
func CacheName(hash string, algorithm HitBoxAlgorithm, order VertexOrder) string {
	var b strings.Builder
	b.Grow(len(hash) + 24)
	b.WriteString(hash)
	b.WriteByte('|')
	b.WriteString(order.String())
	b.WriteByte('|')
	b.WriteString(strings.ToLower(algorithm.CacheName()))
	return b.String()
}

// Texture is a lightweight configuration over shared ImageData: a hit-box
// algorithm, its computed points and a vertex order. Textures are compared
// by identity; two textures with equal CacheName describe the same pixels
// and geometry.
type Texture struct {
	data   *ImageData
	algo   HitBoxAlgorithm
	points HitBoxPoints
	order  VertexOrder
	name   string
	w, h   int
}

// NewTexture builds a texture for data, looking up its hit box in hitboxes
// first and computing (then storing) it on a miss. hitboxes may be nil.
// A nil algorithm selects SimpleHitBox.
func NewTexture(data *ImageData, algo HitBoxAlgorithm, hitboxes *HitBoxCache) (*Texture, error) {
	if algo == nil {
		algo = SimpleHitBox{}
	}
	var pts HitBoxPoints
	cached := false
	if hitboxes != nil {
		pts, cached = hitboxes.Get(data.Hash, algo.CacheName())
	}
	if !cached {
		start := time.Now()
		var err error
		pts, err = algo.Calculate(data.Image)
		if err != nil {
			return nil, fmt.Errorf("texatlas: hit box %s for %s: %w", algo.Name(), data.Hash, err)
		}
		debugLogHitBox(HitBoxKey(data.Hash, algo.CacheName()), len(pts), time.Since(start))
		if hitboxes != nil {
			if err := hitboxes.Put(data.Hash, algo.CacheName(), pts); err != nil {
				return nil, err
			}
		}
	}
	return &Texture{
		data:   data,
		algo:   algo,
		points: pts,
		order:  IdentityOrder,
		name:   CacheName(data.Hash, algo, IdentityOrder),
		w:      data.Width(),
		h:      data.Height(),
	}, nil
}

// CacheName returns the texture's identity key.
func (t *Texture) CacheName() string { return t.name }

// ImageData returns the shared source image.
func (t *Texture) ImageData() *ImageData { return t.data }

// Hash returns the content hash of the source image.
func (t *Texture) Hash() string { return t.data.Hash }

// Width returns the texture width after its transform.
func (t *Texture) Width() int { return t.w }

// Height returns the texture height after its transform.
func (t *Texture) Height() int { return t.h }

// HitBoxAlgorithm returns the algorithm the hit box was computed with.
func (t *Texture) HitBoxAlgorithm() HitBoxAlgorithm { return t.algo }

// HitBoxPoints returns the hit box. The slice must not be modified.
func (t *Texture) HitBoxPoints() HitBoxPoints { return t.points }

// VertexOrder returns the texture's corner mapping onto its source image.
func (t *Texture) VertexOrder() VertexOrder { return t.order }

// WithTransform returns a new texture sharing t's image data with tr applied.
func (t *Texture) WithTransform(tr Transform) *Texture {
	order := t.order.Apply(tr)
	w, h := t.data.Width(), t.data.Height()
	if order.SwapsAxes() {
		w, h = h, w
	}
	return &Texture{
		data:   t.data,
		algo:   t.algo,
		points: t.points.Transform(tr),
		order:  order,
		name:   CacheName(t.data.Hash, t.algo, order),
		w:      w,
		h:      h,
	}
}

func (t *Texture) FlipLeftRight() *Texture    { return t.WithTransform(TransformFlipLeftRight) }
func (t *Texture) FlipTopBottom() *Texture    { return t.WithTransform(TransformFlipTopBottom) }
func (t *Texture) FlipDiagonal() *Texture     { return t.WithTransform(TransformFlipDiagonal) }
func (t *Texture) FlipAntiDiagonal() *Texture { return t.WithTransform(TransformFlipAntiDiagonal) }
func (t *Texture) Rotate90() *Texture         { return t.WithTransform(TransformRotate90) }
func (t *Texture) Rotate180() *Texture        { return t.WithTransform(TransformRotate180) }
func (t *Texture) Rotate270() *Texture        { return t.WithTransform(TransformRotate270) }

func (t *Texture) String() string {
	return fmt.Sprintf("Texture(%s, %dx%d)", t.name, t.w, t.h)
}
