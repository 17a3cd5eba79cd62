package texatlas

import (
	"encoding/json"
	"fmt"
	"image"
	"sort"
)

// SheetFrame is one sprite in a TexturePacker sheet.
type SheetFrame struct {
	Name    string
	Page    int             // index into the sheet's page images
	Frame   image.Rectangle // rectangle occupied on the page
	Rotated bool            // stored 90 degrees clockwise on the page
	Trimmed bool
	// Offset is where the stored pixels go inside the untrimmed source.
	Offset image.Point
	// SourceW and SourceH are the untrimmed sprite size as authored.
	SourceW, SourceH int
}

// Sheet is a parsed TexturePacker JSON description.
type Sheet struct {
	// Pages lists the page image file names in page order. Entries may be
	// empty when the JSON does not name its images.
	Pages  []string
	Frames []SheetFrame // sorted by name
}

// --- JSON structure types ---

type jsonRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type jsonSize struct {
	W int `json:"w"`
	H int `json:"h"`
}

type jsonFrame struct {
	Frame            jsonRect `json:"frame"`
	Rotated          bool     `json:"rotated"`
	Trimmed          bool     `json:"trimmed"`
	SpriteSourceSize jsonRect `json:"spriteSourceSize"`
	SourceSize       jsonSize `json:"sourceSize"`
}

type jsonTexturePage struct {
	Image  string               `json:"image"`
	Frames map[string]jsonFrame `json:"frames"`
}

type jsonMeta struct {
	Image string `json:"image"`
}

// ParseSheet parses TexturePacker JSON. Both the hash format (single
// "frames" object) and the array format ("textures" array with per-page
// frame lists) are supported.
func ParseSheet(jsonData []byte) (*Sheet, error) {
	// Probe top-level keys to detect format.
	var probe struct {
		Frames   json.RawMessage `json:"frames"`
		Textures json.RawMessage `json:"textures"`
		Meta     jsonMeta        `json:"meta"`
	}
	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("texatlas: failed to parse sheet JSON: %w", err)
	}

	sheet := &Sheet{}
	switch {
	case probe.Textures != nil:
		var textures []jsonTexturePage
		if err := json.Unmarshal(probe.Textures, &textures); err != nil {
			return nil, fmt.Errorf("texatlas: failed to parse sheet textures array: %w", err)
		}
		for i, tex := range textures {
			sheet.Pages = append(sheet.Pages, tex.Image)
			for name, f := range tex.Frames {
				sheet.Frames = append(sheet.Frames, toSheetFrame(name, f, i))
			}
		}
	case probe.Frames != nil:
		var frames map[string]jsonFrame
		if err := json.Unmarshal(probe.Frames, &frames); err != nil {
			return nil, fmt.Errorf("texatlas: failed to parse sheet frames: %w", err)
		}
		sheet.Pages = []string{probe.Meta.Image}
		for name, f := range frames {
			sheet.Frames = append(sheet.Frames, toSheetFrame(name, f, 0))
		}
	default:
		return nil, fmt.Errorf("texatlas: sheet JSON has neither \"frames\" nor \"textures\" key")
	}

	sort.Slice(sheet.Frames, func(i, j int) bool {
		return sheet.Frames[i].Name < sheet.Frames[j].Name
	})
	return sheet, nil
}

func toSheetFrame(name string, f jsonFrame, page int) SheetFrame {
	w, h := f.Frame.W, f.Frame.H
	// Rotated frames occupy h x w on the page.
	r := image.Rect(f.Frame.X, f.Frame.Y, f.Frame.X+w, f.Frame.Y+h)
	if f.Rotated {
		r = image.Rect(f.Frame.X, f.Frame.Y, f.Frame.X+h, f.Frame.Y+w)
	}
	sw, sh := f.SourceSize.W, f.SourceSize.H
	if sw == 0 || sh == 0 {
		sw, sh = w, h
	}
	return SheetFrame{
		Name:    name,
		Page:    page,
		Frame:   r,
		Rotated: f.Rotated,
		Trimmed: f.Trimmed,
		Offset:  image.Pt(f.SpriteSourceSize.X, f.SpriteSourceSize.Y),
		SourceW: sw,
		SourceH: sh,
	}
}

// Extract cuts the frame out of page, un-rotates it and places it at its
// trim offset inside a transparent image of the source size.
func (f SheetFrame) Extract(page image.Image) (*image.NRGBA, error) {
	if !f.Frame.In(page.Bounds()) {
		return nil, fmt.Errorf("texatlas: sheet frame %q %v outside page bounds %v", f.Name, f.Frame, page.Bounds())
	}
	src := cropNRGBA(toNRGBA(page), f.Frame)
	if f.Rotated {
		src = rotateCCW(src)
	}
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	if !f.Trimmed && f.Offset == (image.Point{}) && sw == f.SourceW && sh == f.SourceH {
		return src, nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, f.SourceW, f.SourceH))
	for y := 0; y < sh; y++ {
		dy := y + f.Offset.Y
		if dy < 0 || dy >= f.SourceH {
			continue
		}
		for x := 0; x < sw; x++ {
			dx := x + f.Offset.X
			if dx < 0 || dx >= f.SourceW {
				continue
			}
			so, do := src.PixOffset(x, y), dst.PixOffset(dx, dy)
			copy(dst.Pix[do:do+4], src.Pix[so:so+4])
		}
	}
	return dst, nil
}

// rotateCCW undoes a 90 degree clockwise rotation.
func rotateCCW(src *image.NRGBA) *image.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			// dst(x, y) = src(w-1-y, x)
			so := src.PixOffset(src.Rect.Min.X+w-1-y, src.Rect.Min.Y+x)
			do := dst.PixOffset(x, y)
			copy(dst.Pix[do:do+4], src.Pix[so:so+4])
		}
	}
	return dst
}

// LoadSheet parses TexturePacker JSON and slices every frame out of pages,
// keyed by frame name. Rotated frames are restored upright and trimmed
// frames are padded back to their source size.
func LoadSheet(jsonData []byte, pages []image.Image) (map[string]*ImageData, error) {
	sheet, err := ParseSheet(jsonData)
	if err != nil {
		return nil, err
	}
	return sheet.Slice(pages)
}

// Slice extracts every frame from pages.
func (s *Sheet) Slice(pages []image.Image) (map[string]*ImageData, error) {
	out := make(map[string]*ImageData, len(s.Frames))
	for _, f := range s.Frames {
		if f.Page >= len(pages) || pages[f.Page] == nil {
			return nil, fmt.Errorf("texatlas: sheet frame %q references missing page %d", f.Name, f.Page)
		}
		img, err := f.Extract(pages[f.Page])
		if err != nil {
			return nil, err
		}
		out[f.Name] = NewImageData(img)
	}
	return out, nil
}
