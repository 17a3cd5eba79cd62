package texatlas

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// DefaultHitBoxDetail is the detail level used by DetailedHitBox when
// Detail is zero.
const DefaultHitBoxDetail = 4.5

// HitBoxPoints is a polygon in image-centered coordinates with Y pointing up.
// It is either empty (nothing collidable) or has at least three points.
// Treat it as immutable once produced; transforms return new slices.
type HitBoxPoints []Vec2

// Equal reports whether p and o contain the same points in the same order.
func (p HitBoxPoints) Equal(o HitBoxPoints) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Bounds returns the axis-aligned bounding rectangle of the points.
// The zero Rect is returned for an empty hit box.
func (p HitBoxPoints) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	minX, minY := p[0].X, p[0].Y
	maxX, maxY := minX, minY
	for _, v := range p[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Contains reports whether (x, y) lies inside the polygon using the even-odd
// rule. Unlike a convex cross-product test this also handles the concave
// outlines produced by DetailedHitBox.
func (p HitBoxPoints) Contains(x, y float64) bool {
	n := len(p)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := p[i].X, p[i].Y
		xj, yj := p[j].X, p[j].Y
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// signedArea returns twice the signed area; positive means counter-clockwise
// with Y up.
func (p HitBoxPoints) signedArea() float64 {
	var a float64
	for i := range p {
		j := (i + 1) % len(p)
		a += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return a
}

func (p HitBoxPoints) reversed() HitBoxPoints {
	out := make(HitBoxPoints, len(p))
	for i, v := range p {
		out[len(p)-1-i] = v
	}
	return out
}

// HitBoxAlgorithm computes a hit box from the opaque pixels of an image.
type HitBoxAlgorithm interface {
	// Name is the short algorithm name: "none", "simple" or "detailed".
	Name() string
	// CacheName identifies the algorithm and its parameters in cache keys.
	CacheName() string
	// Calculate returns the hit box for img. Implementations that inspect
	// pixels return ErrNotRGBA for images that are not 8-bit RGBA.
	Calculate(img image.Image) (HitBoxPoints, error)
}

// HitBoxAlgorithmByName resolves a configured algorithm name. Names are
// case-insensitive; "bounding" is accepted as an alias for "none". detail
// only applies to "detailed".
func HitBoxAlgorithmByName(name string, detail float64) (HitBoxAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "bounding":
		return BoundingHitBox{}, nil
	case "", "simple":
		return SimpleHitBox{}, nil
	case "detailed":
		return DetailedHitBox{Detail: detail}, nil
	default:
		return nil, fmt.Errorf("texatlas: unknown hit box algorithm %q", name)
	}
}

// --- none ---

// BoundingHitBox returns the full image rectangle without inspecting pixels.
type BoundingHitBox struct{}

func (BoundingHitBox) Name() string      { return "none" }
func (BoundingHitBox) CacheName() string { return "none" }

// Calculate returns the four corners of img, centered at the origin.
func (BoundingHitBox) Calculate(img image.Image) (HitBoxPoints, error) {
	b := img.Bounds()
	return boxPoints(b.Dx(), b.Dy()), nil
}

func boxPoints(w, h int) HitBoxPoints {
	hw, hh := float64(w)/2, float64(h)/2
	return HitBoxPoints{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
}

// --- simple ---

// SimpleHitBox trims transparent borders and cuts transparent corner notches,
// producing between 4 and 8 points.
type SimpleHitBox struct{}

func (SimpleHitBox) Name() string      { return "simple" }
func (SimpleHitBox) CacheName() string { return "simple" }

// Calculate returns the trimmed outline of img, or an empty hit box when img
// is fully transparent.
func (SimpleHitBox) Calculate(img image.Image) (HitBoxPoints, error) {
	m, err := newAlphaMask(img)
	if err != nil {
		return nil, err
	}
	left, top, right, bottom, ok := m.opaqueBounds()
	if !ok {
		return HitBoxPoints{}, nil
	}

	tl := m.cornerOffset(left, top, 1, 1)
	tr := m.cornerOffset(right, top, -1, 1)
	bl := m.cornerOffset(left, bottom, 1, -1)
	br := m.cornerOffset(right, bottom, -1, -1)

	// Pixel-edge coordinates of the eight candidate points (Y down).
	r1, b1 := right+1, bottom+1
	p1 := [2]int{left + tl, top}
	p2 := [2]int{r1 - tr, top}
	p3 := [2]int{r1, top + tr}
	p4 := [2]int{r1, b1 - br}
	p5 := [2]int{r1 - br, b1}
	p6 := [2]int{left + bl, b1}
	p7 := [2]int{left, b1 - bl}
	p8 := [2]int{left, top + tl}

	hw, hh := float64(m.w)/2, float64(m.h)/2
	conv := func(p [2]int) Vec2 {
		return Vec2{X: float64(p[0]) - hw, Y: hh - float64(p[1])}
	}

	out := make(HitBoxPoints, 0, 8)
	add := func(p [2]int) {
		v := conv(p)
		for _, e := range out {
			if e == v {
				return
			}
		}
		out = append(out, v)
	}
	add(p7)
	if bl > 0 {
		add(p6)
	}
	add(p5)
	if br > 0 {
		add(p4)
	}
	add(p3)
	if tr > 0 {
		add(p2)
	}
	add(p1)
	if tl > 0 {
		add(p8)
	}
	return out, nil
}

// --- detailed ---

// DetailedHitBox traces the outline of the opaque pixels and simplifies it.
// Higher Detail keeps more points.
type DetailedHitBox struct {
	Detail float64
}

func (DetailedHitBox) Name() string { return "detailed" }

// CacheName includes the detail level since it changes the result.
func (d DetailedHitBox) CacheName() string {
	return "detailed|" + strconv.FormatFloat(d.detail(), 'g', -1, 64)
}

func (d DetailedHitBox) detail() float64 {
	if d.Detail <= 0 {
		return DefaultHitBoxDetail
	}
	return d.Detail
}

// tolerance is the Douglas-Peucker distance in pixels.
func (d DetailedHitBox) tolerance() float64 {
	return 10 / d.detail()
}

// Calculate returns the simplified outline of the largest opaque region of
// img. If all four corners are opaque the image is treated as a full tile
// and the bounding box is returned without tracing.
func (d DetailedHitBox) Calculate(img image.Image) (HitBoxPoints, error) {
	m, err := newAlphaMask(img)
	if err != nil {
		return nil, err
	}
	if m.w == 0 || m.h == 0 {
		return HitBoxPoints{}, nil
	}
	if m.opaque(0, 0) && m.opaque(m.w-1, 0) && m.opaque(0, m.h-1) && m.opaque(m.w-1, m.h-1) {
		return boxPoints(m.w, m.h), nil
	}

	loops := traceContours(m)
	if len(loops) == 0 {
		return HitBoxPoints{}, nil
	}
	loop := largestLoop(loops)

	simplified := simplifyClosed(loop, d.tolerance())
	if len(simplified) < 3 {
		simplified = simplifyClosed(loop, 0)
	}
	if len(simplified) < 3 {
		return HitBoxPoints{}, nil
	}

	hw, hh := float64(m.w)/2, float64(m.h)/2
	out := make(HitBoxPoints, len(simplified))
	for i, v := range simplified {
		out[i] = Vec2{X: v.X - hw, Y: hh - v.Y}
	}
	if out.signedArea() < 0 {
		out = out.reversed()
	}
	return out, nil
}

// --- alpha mask ---

// alphaMask is a read-only view of the alpha channel of an RGBA image.
type alphaMask struct {
	pix    []uint8
	stride int
	w, h   int
}

func newAlphaMask(img image.Image) (*alphaMask, error) {
	switch im := img.(type) {
	case *image.NRGBA:
		return &alphaMask{
			pix:    im.Pix[im.PixOffset(im.Rect.Min.X, im.Rect.Min.Y):],
			stride: im.Stride,
			w:      im.Rect.Dx(),
			h:      im.Rect.Dy(),
		}, nil
	case *image.RGBA:
		return &alphaMask{
			pix:    im.Pix[im.PixOffset(im.Rect.Min.X, im.Rect.Min.Y):],
			stride: im.Stride,
			w:      im.Rect.Dx(),
			h:      im.Rect.Dy(),
		}, nil
	case nil:
		return nil, fmt.Errorf("%w: nil image", ErrNotRGBA)
	default:
		return nil, fmt.Errorf("%w: got %T, convert with NewImageData first", ErrNotRGBA, img)
	}
}

// opaque reports whether the pixel has non-zero alpha. Out-of-range
// coordinates are transparent.
func (m *alphaMask) opaque(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.pix[y*m.stride+x*4+3] != 0
}

// opaqueBounds returns the inclusive pixel bounds of all opaque pixels.
func (m *alphaMask) opaqueBounds() (left, top, right, bottom int, ok bool) {
	left, top = m.w, m.h
	right, bottom = -1, -1
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !m.opaque(x, y) {
				continue
			}
			left = min(left, x)
			right = max(right, x)
			top = min(top, y)
			bottom = max(bottom, y)
		}
	}
	return left, top, right, bottom, right >= 0
}

// cornerOffset walks anti-diagonals inward from a trimmed corner and returns
// how many diagonals are fully transparent before an opaque pixel is found.
func (m *alphaMask) cornerOffset(startX, startY, dirX, dirY int) int {
	limit := max(m.w, m.h)
	for offset := 0; offset <= limit; offset++ {
		x := startX
		y := startY + offset*dirY
		for i := 0; i <= offset; i++ {
			if m.opaque(x, y) {
				return offset
			}
			y -= dirY
			x += dirX
		}
	}
	return 0
}
