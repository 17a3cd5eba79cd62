package texatlas

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/draw"
)

// Surface is one atlas page: a fixed-size pixel store the atlas writes
// packed images into. Pixel exchange uses straight-alpha NRGBA.
//
// GPU-backed surfaces must only be touched from the goroutine that owns the
// rendering context.
type Surface interface {
	// Bounds returns the page rectangle, anchored at (0, 0).
	Bounds() image.Rectangle
	// WritePixels replaces the pixels of r with src. src has r's size and
	// is anchored at (0, 0).
	WritePixels(r image.Rectangle, src *image.NRGBA)
	// ReadPixels copies the pixels of r into a new origin-anchored image.
	ReadPixels(r image.Rectangle) *image.NRGBA
	// Target returns a drawable view of r that writes through to the page.
	Target(r image.Rectangle) draw.Image
	// Dispose releases the page. The surface must not be used afterwards.
	Dispose()
}

// SurfaceFactory creates an empty (fully transparent) page.
type SurfaceFactory func(width, height int) Surface

// --- CPU ---

// ImageSurface is a CPU-resident page backed by an *image.NRGBA. It is the
// default surface and is what tools and tests use.
type ImageSurface struct {
	img *image.NRGBA
}

// NewImageSurface is a SurfaceFactory for CPU pages.
func NewImageSurface(width, height int) Surface {
	return &ImageSurface{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// Image returns the backing image.
func (s *ImageSurface) Image() *image.NRGBA { return s.img }

func (s *ImageSurface) Bounds() image.Rectangle { return s.img.Rect }

func (s *ImageSurface) WritePixels(r image.Rectangle, src *image.NRGBA) {
	draw.Draw(s.img, r, src, src.Rect.Min, draw.Src)
}

func (s *ImageSurface) ReadPixels(r image.Rectangle) *image.NRGBA {
	return cropNRGBA(s.img, r)
}

func (s *ImageSurface) Target(r image.Rectangle) draw.Image {
	return s.img.SubImage(r).(*image.NRGBA)
}

func (s *ImageSurface) Dispose() {
	s.img = image.NewNRGBA(image.Rectangle{})
}

// --- GPU ---

// EbitenSurface is a GPU-resident page backed by an *ebiten.Image. Ebiten
// stores premultiplied alpha; conversion happens on every pixel exchange.
type EbitenSurface struct {
	img  *ebiten.Image
	w, h int
}

// NewEbitenSurface is a SurfaceFactory for GPU pages.
func NewEbitenSurface(width, height int) Surface {
	return &EbitenSurface{
		img: ebiten.NewImageWithOptions(image.Rect(0, 0, width, height), &ebiten.NewImageOptions{Unmanaged: true}),
		w:   width,
		h:   height,
	}
}

// Image returns the page image for drawing sprites from.
func (s *EbitenSurface) Image() *ebiten.Image { return s.img }

func (s *EbitenSurface) Bounds() image.Rectangle { return image.Rect(0, 0, s.w, s.h) }

func (s *EbitenSurface) WritePixels(r image.Rectangle, src *image.NRGBA) {
	sub := s.img.SubImage(r).(*ebiten.Image)
	sub.WritePixels(premultiply(src))
}

func (s *EbitenSurface) ReadPixels(r image.Rectangle) *image.NRGBA {
	sub := s.img.SubImage(r).(*ebiten.Image)
	pix := make([]byte, 4*r.Dx()*r.Dy())
	sub.ReadPixels(pix)
	return unpremultiply(pix, r.Dx(), r.Dy())
}

// Target returns the *ebiten.Image sub-image for r; callers drawing with
// ebiten can type-assert it.
func (s *EbitenSurface) Target(r image.Rectangle) draw.Image {
	return s.img.SubImage(r).(*ebiten.Image)
}

func (s *EbitenSurface) Dispose() {
	if s.img != nil {
		s.img.Deallocate()
		s.img = nil
	}
}

// premultiply converts straight-alpha rows to the packed premultiplied
// layout ebiten expects.
func premultiply(src *image.NRGBA) []byte {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y):]
		for x := 0; x < w; x++ {
			i, o := x*4, (y*w+x)*4
			a := uint32(row[i+3])
			out[o] = uint8(uint32(row[i]) * a / 255)
			out[o+1] = uint8(uint32(row[i+1]) * a / 255)
			out[o+2] = uint8(uint32(row[i+2]) * a / 255)
			out[o+3] = uint8(a)
		}
	}
	return out
}

// unpremultiply converts ebiten's premultiplied pixels to straight alpha.
func unpremultiply(pix []byte, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(pix); i += 4 {
		r, g, b, a := pix[i], pix[i+1], pix[i+2], pix[i+3]
		if a > 0 && a < 255 {
			r = uint8(min(int(r)*255/int(a), 255))
			g = uint8(min(int(g)*255/int(a), 255))
			b = uint8(min(int(b)*255/int(a), 255))
		}
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = a
	}
	return img
}
