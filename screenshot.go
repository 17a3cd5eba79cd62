package texatlas

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"
)

// SavePage writes page i to path. A ".webp" extension writes lossless WebP;
// anything else writes PNG.
func (a *Atlas) SavePage(i int, path string) error {
	if i < 0 || i >= len(a.pages) {
		return fmt.Errorf("texatlas: save page %d: have %d page(s)", i, len(a.pages))
	}
	img := a.pages[i].surface.ReadPixels(a.pages[i].surface.Bounds())
	if err := writeImage(path, img); err != nil {
		return fmt.Errorf("texatlas: save page %d: %w", i, err)
	}
	return nil
}

// DumpPages writes every page into dir as timestamped PNG files named after
// label and returns the paths written.
func (a *Atlas) DumpPages(dir, label string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("texatlas: dump pages: mkdir %s: %w", dir, err)
	}
	stamp := time.Now().Format("20060102_150405")
	safe := sanitizeLabel(label)
	paths := make([]string, 0, len(a.pages))
	for i := range a.pages {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_page%d.png", stamp, safe, i))
		if err := a.SavePage(i, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeImage encodes img to path, choosing the format by extension.
func writeImage(path string, img *image.NRGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		err = nativewebp.Encode(f, img, nil)
	} else {
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// sanitizeLabel replaces characters that are unsafe in file names with
// underscores and falls back to "unlabeled" for empty strings.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unlabeled"
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
