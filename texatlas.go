package texatlas

import (
	"errors"
	"fmt"
)

// Vec2 is a 2D vector used for hit-box points, offsets and sizes.
type Vec2 struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle. For hit boxes the origin is the image
// center with Y increasing upward; for atlas pixel rectangles the origin is
// the page's top-left with Y increasing downward.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.Width &&
		r.X+r.Width >= other.X &&
		r.Y <= other.Y+other.Height &&
		r.Y+r.Height >= other.Y
}

// Sentinel errors. Typed errors below wrap or match these via errors.Is.
var (
	// ErrNotRGBA is returned when a hit-box algorithm receives an image that
	// is not stored as 8-bit RGBA.
	ErrNotRGBA = errors.New("texatlas: image is not RGBA")

	// ErrAtlasFull is matched by *OverflowError.
	ErrAtlasFull = errors.New("texatlas: atlas is full")

	// ErrNotInAtlas is returned by atlas operations on a texture that was
	// never added or has already been removed.
	ErrNotInAtlas = errors.New("texatlas: texture not in atlas")

	// ErrEmptyHitBox is returned when a physics shape is requested for a
	// texture without collidable pixels.
	ErrEmptyHitBox = errors.New("texatlas: hit box is empty")

	// ErrEmptyImage is returned when a zero-width or zero-height image is
	// added to the atlas.
	ErrEmptyImage = errors.New("texatlas: image is empty")

	// ErrTextureNotFound is returned by TextureCache.Delete when the key is
	// missing and errors are not ignored.
	ErrTextureNotFound = errors.New("texatlas: texture not found")
)

// InvalidHitBoxError reports a hit box with 1 or 2 points, which is neither
// empty nor a polygon.
type InvalidHitBoxError struct {
	Key    string
	Points int
}

func (e *InvalidHitBoxError) Error() string {
	return fmt.Sprintf("texatlas: hit box %q has %d points, want 0 or at least 3", e.Key, e.Points)
}

// DuplicatePathError reports a second texture registered under a file path
// already present in the same strength tier.
type DuplicatePathError struct {
	Path   string
	Strong bool
}

func (e *DuplicatePathError) Error() string {
	tier := "weak"
	if e.Strong {
		tier = "strong"
	}
	return fmt.Sprintf("texatlas: file path %q already registered in %s texture cache", e.Path, tier)
}

// OverflowError reports a texture that cannot be packed even after the atlas
// grew to its configured maximum.
type OverflowError struct {
	Name                string
	Width, Height       int
	MaxWidth, MaxHeight int
	Pages               int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("texatlas: no room for %q (%dx%d) in %d page(s) of at most %dx%d",
		e.Name, e.Width, e.Height, e.Pages, e.MaxWidth, e.MaxHeight)
}

// Is makes errors.Is(err, ErrAtlasFull) true for overflow errors.
func (e *OverflowError) Is(target error) bool {
	return target == ErrAtlasFull
}

// SizeMismatchError reports an UpdateImage call whose pixels differ in size
// from the packed region.
type SizeMismatchError struct {
	Name                  string
	Width, Height         int
	WantWidth, WantHeight int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("texatlas: update %q: image is %dx%d, region is %dx%d",
		e.Name, e.Width, e.Height, e.WantWidth, e.WantHeight)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "texatlas: invalid config." + e.Field + ": " + e.Reason
}
