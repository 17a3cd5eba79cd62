package texatlas

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageData is a decoded, immutable RGBA image together with its content
// hash. Many textures (flipped or rotated variants) share one ImageData, and
// the atlas packs each distinct hash exactly once.
type ImageData struct {
	Hash  string
	Image *image.NRGBA
}

// NewImageData converts img to straight-alpha NRGBA anchored at (0, 0) and
// computes its content hash. An *image.NRGBA already anchored at the origin
// is used as-is; callers must not mutate it afterwards.
func NewImageData(img image.Image) *ImageData {
	n := toNRGBA(img)
	return &ImageData{Hash: HashImage(n), Image: n}
}

// Width returns the image width in pixels.
func (d *ImageData) Width() int { return d.Image.Rect.Dx() }

// Height returns the image height in pixels.
func (d *ImageData) Height() int { return d.Image.Rect.Dy() }

// HashImage returns the hex sha256 of the image dimensions and pixel rows.
// Two images with identical pixels hash identically regardless of source
// path or file format.
func HashImage(img *image.NRGBA) string {
	h := sha256.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[0:4], uint32(img.Rect.Dx()))
	binary.LittleEndian.PutUint32(dims[4:8], uint32(img.Rect.Dy()))
	h.Write(dims[:])
	rowLen := img.Rect.Dx() * 4
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		off := img.PixOffset(img.Rect.Min.X, y)
		h.Write(img.Pix[off : off+rowLen])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DecodeImageData decodes any registered image format (PNG, JPEG, GIF, BMP,
// TIFF, WebP) into ImageData. TGA has no magic number, so it is tried only
// after every registered format has rejected the input.
func DecodeImageData(r io.Reader) (*ImageData, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("texatlas: decode image: %w", err)
	}
	img, err := decodeImage(raw, "")
	if err != nil {
		return nil, fmt.Errorf("texatlas: decode image: %w", err)
	}
	return NewImageData(img), nil
}

// LoadImageData reads and decodes the image file at path. Files with a .tga
// extension are decoded as TGA.
func LoadImageData(path string) (*ImageData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("texatlas: read %s: %w", path, err)
	}
	img, err := decodeImage(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("texatlas: decode %s: %w", path, err)
	}
	return NewImageData(img), nil
}

// decodeImage picks TGA by extension. The tga package must not be registered
// with image.RegisterFormat: its empty magic matches every input and would
// shadow PNG, JPEG and GIF.
func decodeImage(raw []byte, ext string) (image.Image, error) {
	if strings.EqualFold(ext, ".tga") {
		return tga.Decode(bytes.NewReader(raw))
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if errors.Is(err, image.ErrFormat) && ext == "" {
		if t, terr := tga.Decode(bytes.NewReader(raw)); terr == nil {
			return t, nil
		}
	}
	return img, err
}

// toNRGBA converts any image to NRGBA with bounds starting at (0, 0).
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
	return dst
}

// cropNRGBA copies the r sub-rectangle of src into a new origin-anchored image.
func cropNRGBA(src *image.NRGBA, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Rect, src, r.Min, draw.Src)
	return dst
}
