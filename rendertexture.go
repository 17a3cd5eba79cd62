package texatlas

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/draw"
)

// RenderInto calls fn with a drawable view of tex's region, so procedural
// content can be painted straight into the atlas. The view is clipped to the
// region and anchored at the region's top-left (use dst.Bounds().Min).
//
// While fn runs the view is the atlas's current target. The previous target
// is restored when fn returns, including when it panics, so calls nest.
// On normal return the padding around the region is refreshed from the new
// edge pixels.
func (a *Atlas) RenderInto(tex *Texture, fn func(dst draw.Image)) error {
	at, ok := a.textures[tex.CacheName()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotInAtlas, tex.CacheName())
	}
	img := at.image
	page := a.pages[img.page]

	a.pushTarget(page.surface.Target(img.inner))
	defer a.popTarget()

	fn(a.CurrentTarget())

	if a.cfg.Padding > 0 {
		page.surface.WritePixels(img.slot, extrude(page.surface.ReadPixels(img.inner), a.cfg.Padding))
	}
	return nil
}

// RenderIntoEbiten is RenderInto for atlases backed by EbitenSurface pages;
// fn receives the region as an *ebiten.Image sub-image and can draw to it
// with DrawImage or DrawTriangles.
func (a *Atlas) RenderIntoEbiten(tex *Texture, fn func(dst *ebiten.Image)) error {
	var err error
	rerr := a.RenderInto(tex, func(dst draw.Image) {
		eimg, ok := dst.(*ebiten.Image)
		if !ok {
			err = fmt.Errorf("texatlas: render into %q: page is %T, not an ebiten surface", tex.CacheName(), dst)
			return
		}
		fn(eimg)
	})
	if rerr != nil {
		return rerr
	}
	return err
}

// CurrentTarget returns the innermost active RenderInto view, or nil.
func (a *Atlas) CurrentTarget() draw.Image {
	if len(a.targets) == 0 {
		return nil
	}
	return a.targets[len(a.targets)-1]
}

func (a *Atlas) pushTarget(t draw.Image) {
	a.targets = append(a.targets, t)
}

func (a *Atlas) popTarget() {
	a.targets[len(a.targets)-1] = nil
	a.targets = a.targets[:len(a.targets)-1]
}
