package texatlas

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"slices"

	"golang.org/x/image/draw"
)

// AtlasConfig holds atlas configuration.
type AtlasConfig struct {
	// Width and Height are the initial page size. Default: 512x512
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// MaxWidth and MaxHeight bound page growth. Default: 4096x4096
	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`

	// Padding is the number of edge-replicated pixels around every packed
	// image, preventing neighbors from bleeding in under filtering.
	// Default: 1
	Padding int `yaml:"padding"`

	// MaxPages limits how many pages are opened once growth is exhausted.
	// Default: 1
	MaxPages int `yaml:"max_pages"`
}

// DefaultAtlasConfig returns default configuration.
func DefaultAtlasConfig() AtlasConfig {
	return AtlasConfig{
		Width:     512,
		Height:    512,
		MaxWidth:  4096,
		MaxHeight: 4096,
		Padding:   1,
		MaxPages:  1,
	}
}

// maxPageSize is the largest page dimension accepted by Validate.
const maxPageSize = 16384

// Validate checks if the configuration is valid.
func (c *AtlasConfig) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return &ConfigError{Field: "Atlas.Width/Height", Reason: "must be at least 1"}
	}
	if c.MaxWidth < c.Width || c.MaxHeight < c.Height {
		return &ConfigError{Field: "Atlas.MaxWidth/MaxHeight", Reason: "must be at least Width/Height"}
	}
	if c.MaxWidth > maxPageSize || c.MaxHeight > maxPageSize {
		return &ConfigError{Field: "Atlas.MaxWidth/MaxHeight", Reason: fmt.Sprintf("must be at most %d", maxPageSize)}
	}
	if c.Padding < 0 {
		return &ConfigError{Field: "Atlas.Padding", Reason: "must be non-negative"}
	}
	if c.MaxPages < 1 {
		return &ConfigError{Field: "Atlas.MaxPages", Reason: "must be at least 1"}
	}
	return nil
}

// AtlasRegion describes where a texture's pixels live in the atlas.
// Regions are values; they go stale when the atlas is rebuilt, which is
// detectable by comparing Generation with Atlas.Generation.
type AtlasRegion struct {
	TextureID           int    // stable slot id, reused after removal
	Page                int    // index of the page surface
	X, Y, Width, Height int    // pixel rectangle of the image (padding excluded)
	U0, V0, U1, V1      float32 // normalized page coordinates of the rectangle
	Generation          uint64 // atlas generation the region was computed in
}

// Rect returns the pixel rectangle of the region.
func (r AtlasRegion) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

type atlasPage struct {
	surface Surface
	alloc   *GuillotineAllocator
}

// atlasImage is one packed ImageData, shared by every texture with the same
// content hash.
type atlasImage struct {
	hash  string
	w, h  int
	page  int
	slot  image.Rectangle // allocated rectangle including padding
	inner image.Rectangle // image pixels
	refs  int
}

type atlasTexture struct {
	id    int
	name  string
	image *atlasImage
	order VertexOrder
	refs  int
}

// AtlasStats summarizes atlas occupancy for debugging and tuning.
type AtlasStats struct {
	Pages         int
	Width, Height int
	Images        int
	Textures      int
	Utilization   float64 // used area over total page area, padding included
	Rebuilds      int
	Generation    uint64
}

// Atlas packs texture images into one or more shared page surfaces and
// hands back regions and UV coordinates for rendering.
//
// Images are de-duplicated by content hash: flipped or rotated textures
// over the same image share one packed rectangle and differ only in the
// order of their texture coordinates. Both images and textures are
// reference counted; a rectangle is freed when its last texture is removed.
//
// Atlas is not safe for concurrent use and, with a GPU surface factory,
// must only be used from the rendering goroutine.
type Atlas struct {
	cfg        AtlasConfig
	newSurface SurfaceFactory
	width      int
	height     int
	pages      []*atlasPage
	images     map[string]*atlasImage
	textures   map[string]*atlasTexture
	freeIDs    []int
	nextID     int
	targets    []draw.Image
	generation uint64
	rebuilds   int
	debug      bool
}

// NewAtlas creates an atlas with one empty page. A nil factory selects
// NewImageSurface.
func NewAtlas(cfg AtlasConfig, factory SurfaceFactory) (*Atlas, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = NewImageSurface
	}
	a := &Atlas{
		cfg:        cfg,
		newSurface: factory,
		width:      cfg.Width,
		height:     cfg.Height,
		images:     make(map[string]*atlasImage),
		textures:   make(map[string]*atlasTexture),
	}
	a.pages = []*atlasPage{a.openPage()}
	return a, nil
}

// SetDebugMode enables stderr logging of growth and rebuilds.
func (a *Atlas) SetDebugMode(enabled bool) {
	a.debug = enabled
}

func (a *Atlas) openPage() *atlasPage {
	return &atlasPage{
		surface: a.newSurface(a.width, a.height),
		alloc:   NewGuillotineAllocator(a.width, a.height),
	}
}

// Add packs tex and returns its region. Adding a texture that is already
// present (by cache name) only increments its reference count. Images are
// packed once per content hash.
//
// When no page has room the page size grows, doubling its smaller side up
// to the configured maximum, and everything is repacked; afterwards new
// pages are opened up to MaxPages. If the image still does not fit an
// *OverflowError is returned and the atlas is unchanged.
func (a *Atlas) Add(tex *Texture) (AtlasRegion, error) {
	if at, ok := a.textures[tex.CacheName()]; ok {
		at.refs++
		return a.region(at), nil
	}
	if tex.Width() == 0 || tex.Height() == 0 {
		return AtlasRegion{}, fmt.Errorf("%w: %q is %dx%d", ErrEmptyImage, tex.CacheName(), tex.Width(), tex.Height())
	}
	img, ok := a.images[tex.Hash()]
	if !ok {
		var err error
		img, err = a.pack(tex.ImageData(), tex.CacheName())
		if err != nil {
			return AtlasRegion{}, err
		}
		a.images[img.hash] = img
	}
	img.refs++
	at := &atlasTexture{
		id:    a.allocID(),
		name:  tex.CacheName(),
		image: img,
		order: tex.VertexOrder(),
		refs:  1,
	}
	a.textures[at.name] = at
	return a.region(at), nil
}

func (a *Atlas) allocID() int {
	if n := len(a.freeIDs); n > 0 {
		id := a.freeIDs[n-1]
		a.freeIDs = a.freeIDs[:n-1]
		return id
	}
	id := a.nextID
	a.nextID++
	return id
}

// pack allocates space for data and uploads it.
func (a *Atlas) pack(data *ImageData, name string) (*atlasImage, error) {
	pad := a.cfg.Padding
	sw, sh := data.Width()+2*pad, data.Height()+2*pad
	overflow := func() error {
		return &OverflowError{
			Name:      name,
			Width:     data.Width(),
			Height:    data.Height(),
			MaxWidth:  a.cfg.MaxWidth,
			MaxHeight: a.cfg.MaxHeight,
			Pages:     len(a.pages),
		}
	}
	if sw > a.cfg.MaxWidth || sh > a.cfg.MaxHeight {
		return nil, overflow()
	}

	img := &atlasImage{hash: data.Hash, w: data.Width(), h: data.Height()}
	for {
		if a.place(img, sw, sh) {
			break
		}
		nw, nh, ok := a.nextSize(sw, sh)
		if !ok {
			if len(a.pages) >= a.cfg.MaxPages {
				return nil, overflow()
			}
			a.pages = append(a.pages, a.openPage())
			if a.debug || globalDebug {
				debugLogf("atlas: opened page %d (%dx%d) for %q", len(a.pages)-1, a.width, a.height, name)
			}
			if !a.place(img, sw, sh) {
				return nil, overflow()
			}
			break
		}
		if err := a.repack(nw, nh); err != nil {
			return nil, overflow()
		}
		if a.debug || globalDebug {
			debugLogf("atlas: grew to %dx%d for %q", nw, nh, name)
		}
	}

	a.pages[img.page].surface.WritePixels(img.slot, extrude(data.Image, pad))
	return img, nil
}

// place tries to allocate img on an existing page.
func (a *Atlas) place(img *atlasImage, sw, sh int) bool {
	for i, p := range a.pages {
		if r, ok := p.alloc.Allocate(sw, sh); ok {
			a.setSlot(img, i, r)
			return true
		}
	}
	return false
}

func (a *Atlas) setSlot(img *atlasImage, page int, slot image.Rectangle) {
	pad := a.cfg.Padding
	img.page = page
	img.slot = slot
	img.inner = image.Rect(slot.Min.X+pad, slot.Min.Y+pad, slot.Min.X+pad+img.w, slot.Min.Y+pad+img.h)
}

// nextSize returns the next page size able to hold an sw x sh slot, or false
// once the maximum is reached.
func (a *Atlas) nextSize(sw, sh int) (int, int, bool) {
	w, h := a.width, a.height
	if w >= a.cfg.MaxWidth && h >= a.cfg.MaxHeight {
		return 0, 0, false
	}
	switch {
	case sw > w && w < a.cfg.MaxWidth:
		w = min(w*2, a.cfg.MaxWidth)
	case sh > h && h < a.cfg.MaxHeight:
		h = min(h*2, a.cfg.MaxHeight)
	case (w <= h || h >= a.cfg.MaxHeight) && w < a.cfg.MaxWidth:
		w = min(w*2, a.cfg.MaxWidth)
	default:
		h = min(h*2, a.cfg.MaxHeight)
	}
	return w, h, true
}

// Remove releases one reference to tex. When the last reference to the
// image goes away its rectangle returns to the page's free list; no other
// region moves.
func (a *Atlas) Remove(tex *Texture) error {
	return a.removeName(tex.CacheName())
}

func (a *Atlas) removeName(name string) error {
	at, ok := a.textures[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotInAtlas, name)
	}
	at.refs--
	if at.refs > 0 {
		return nil
	}
	delete(a.textures, at.name)
	a.freeIDs = append(a.freeIDs, at.id)

	img := at.image
	img.refs--
	if img.refs > 0 {
		return nil
	}
	delete(a.images, img.hash)
	a.pages[img.page].alloc.Free(img.slot)
	return nil
}

// Has reports whether tex is in the atlas.
func (a *Atlas) Has(tex *Texture) bool {
	_, ok := a.textures[tex.CacheName()]
	return ok
}

// Region returns the current region of tex.
func (a *Atlas) Region(tex *Texture) (AtlasRegion, bool) {
	at, ok := a.textures[tex.CacheName()]
	if !ok {
		return AtlasRegion{}, false
	}
	return a.region(at), true
}

func (a *Atlas) region(at *atlasTexture) AtlasRegion {
	r := at.image.inner
	pw, ph := float32(a.width), float32(a.height)
	return AtlasRegion{
		TextureID:  at.id,
		Page:       at.image.page,
		X:          r.Min.X,
		Y:          r.Min.Y,
		Width:      r.Dx(),
		Height:     r.Dy(),
		U0:         float32(r.Min.X) / pw,
		V0:         float32(r.Min.Y) / ph,
		U1:         float32(r.Max.X) / pw,
		V1:         float32(r.Max.Y) / ph,
		Generation: a.generation,
	}
}

// TextureCoords returns the UVs of tex's upper-left, upper-right,
// lower-left and lower-right corners as (u, v) pairs, with the texture's
// vertex order applied.
func (a *Atlas) TextureCoords(tex *Texture) ([8]float32, bool) {
	at, ok := a.textures[tex.CacheName()]
	if !ok {
		return [8]float32{}, false
	}
	r := a.region(at)
	corners := [4][2]float32{
		{r.U0, r.V0}, {r.U1, r.V0},
		{r.U0, r.V1}, {r.U1, r.V1},
	}
	var out [8]float32
	for i, src := range at.order {
		out[2*i] = corners[src][0]
		out[2*i+1] = corners[src][1]
	}
	return out, true
}

// Rebuild repacks every live image into fresh pages, largest first, to
// undo fragmentation. Pixel content is preserved, including anything drawn
// through RenderInto or UpdateImage, but every region handed out before is
// stale afterwards.
func (a *Atlas) Rebuild() error {
	return a.repack(a.width, a.height)
}

// Resize changes the page size and repacks. On failure the atlas keeps its
// previous size and content.
func (a *Atlas) Resize(width, height int) error {
	if width < 1 || height < 1 || width > a.cfg.MaxWidth || height > a.cfg.MaxHeight {
		return &ConfigError{
			Field:  "Atlas.Resize",
			Reason: fmt.Sprintf("%dx%d outside 1x1..%dx%d", width, height, a.cfg.MaxWidth, a.cfg.MaxHeight),
		}
	}
	return a.repack(width, height)
}

// repack places all live images on new width x height pages, then copies
// their pixels across. Nothing changes unless every image fits.
func (a *Atlas) repack(width, height int) error {
	pad := a.cfg.Padding
	live := make([]*atlasImage, 0, len(a.images))
	for _, img := range a.images {
		live = append(live, img)
	}
	slices.SortFunc(live, func(x, y *atlasImage) int {
		if c := cmp.Compare(y.w*y.h, x.w*x.h); c != 0 {
			return c
		}
		if c := cmp.Compare(y.h, x.h); c != 0 {
			return c
		}
		return cmp.Compare(x.hash, y.hash)
	})

	type placement struct {
		page int
		slot image.Rectangle
	}
	allocs := []*GuillotineAllocator{NewGuillotineAllocator(width, height)}
	placed := make([]placement, len(live))
	for i, img := range live {
		sw, sh := img.w+2*pad, img.h+2*pad
		ok := false
		for pi, al := range allocs {
			if r, fit := al.Allocate(sw, sh); fit {
				placed[i] = placement{page: pi, slot: r}
				ok = true
				break
			}
		}
		if !ok && len(allocs) < a.cfg.MaxPages {
			al := NewGuillotineAllocator(width, height)
			if r, fit := al.Allocate(sw, sh); fit {
				allocs = append(allocs, al)
				placed[i] = placement{page: len(allocs) - 1, slot: r}
				ok = true
			}
		}
		if !ok {
			return &OverflowError{
				Name:      img.hash,
				Width:     img.w,
				Height:    img.h,
				MaxWidth:  width,
				MaxHeight: height,
				Pages:     len(allocs),
			}
		}
	}

	// Read everything back before any old page is released.
	pixels := make([]*image.NRGBA, len(live))
	for i, img := range live {
		pixels[i] = a.pages[img.page].surface.ReadPixels(img.inner)
	}

	pages := make([]*atlasPage, len(allocs))
	for i, al := range allocs {
		pages[i] = &atlasPage{surface: a.newSurface(width, height), alloc: al}
	}
	for _, p := range a.pages {
		p.surface.Dispose()
	}
	a.pages = pages
	a.width, a.height = width, height

	for i, img := range live {
		a.setSlot(img, placed[i].page, placed[i].slot)
		a.pages[img.page].surface.WritePixels(img.slot, extrude(pixels[i], pad))
	}

	a.generation++
	a.rebuilds++
	if a.debug || globalDebug {
		debugLogRebuild(a.Stats())
	}
	return nil
}

// UpdateImage replaces the pixels of tex's packed image in place. img must
// have exactly the region's size. The region and UVs do not change; every
// texture sharing the image sees the new pixels.
func (a *Atlas) UpdateImage(tex *Texture, img image.Image) error {
	at, ok := a.textures[tex.CacheName()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotInAtlas, tex.CacheName())
	}
	ai := at.image
	b := img.Bounds()
	if b.Dx() != ai.w || b.Dy() != ai.h {
		return &SizeMismatchError{
			Name:       tex.CacheName(),
			Width:      b.Dx(),
			Height:     b.Dy(),
			WantWidth:  ai.w,
			WantHeight: ai.h,
		}
	}
	a.pages[ai.page].surface.WritePixels(ai.slot, extrude(toNRGBA(img), a.cfg.Padding))
	return nil
}

// Replace swaps old for tex, typically a reloaded version of the same file.
// If old is the only user of its image and the new pixels have the same
// size they are written in place through UpdateImage and the region keeps
// its position and texture id. Otherwise tex is added and every reference
// to old is removed. The returned region belongs to tex.
func (a *Atlas) Replace(old, tex *Texture) (AtlasRegion, error) {
	at, ok := a.textures[old.CacheName()]
	if !ok {
		return AtlasRegion{}, fmt.Errorf("%w: %q", ErrNotInAtlas, old.CacheName())
	}
	if old.CacheName() == tex.CacheName() {
		return a.region(at), nil
	}
	_, taken := a.images[tex.Hash()]
	if _, exists := a.textures[tex.CacheName()]; !exists && !taken && at.image.refs == 1 {
		err := a.UpdateImage(old, tex.ImageData().Image)
		if err == nil {
			img := at.image
			delete(a.images, img.hash)
			img.hash = tex.Hash()
			a.images[img.hash] = img
			delete(a.textures, at.name)
			at.name = tex.CacheName()
			at.order = tex.VertexOrder()
			a.textures[at.name] = at
			return a.region(at), nil
		}
		var mismatch *SizeMismatchError
		if !errors.As(err, &mismatch) {
			return AtlasRegion{}, err
		}
	}

	refs := at.refs
	if _, err := a.Add(tex); err != nil {
		return AtlasRegion{}, err
	}
	a.textures[tex.CacheName()].refs += refs - 1
	at.refs = 1
	if err := a.Remove(old); err != nil {
		return AtlasRegion{}, err
	}
	r, _ := a.Region(tex)
	return r, nil
}

// ReadRegion returns a copy of the pixels currently packed for tex, in the
// source image's orientation.
func (a *Atlas) ReadRegion(tex *Texture) (*image.NRGBA, error) {
	at, ok := a.textures[tex.CacheName()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotInAtlas, tex.CacheName())
	}
	return a.pages[at.image.page].surface.ReadPixels(at.image.inner), nil
}

// Generation increments on every rebuild, resize or growth.
func (a *Atlas) Generation() uint64 { return a.generation }

// PageSize returns the current page dimensions.
func (a *Atlas) PageSize() (width, height int) { return a.width, a.height }

// PageCount returns the number of pages.
func (a *Atlas) PageCount() int { return len(a.pages) }

// Page returns page i's surface.
func (a *Atlas) Page(i int) Surface { return a.pages[i].surface }

// Pages returns all page surfaces in index order.
func (a *Atlas) Pages() []Surface {
	out := make([]Surface, len(a.pages))
	for i, p := range a.pages {
		out[i] = p.surface
	}
	return out
}

// Stats returns occupancy counters.
func (a *Atlas) Stats() AtlasStats {
	used := 0
	for _, p := range a.pages {
		used += p.alloc.UsedArea()
	}
	total := a.width * a.height * len(a.pages)
	s := AtlasStats{
		Pages:      len(a.pages),
		Width:      a.width,
		Height:     a.height,
		Images:     len(a.images),
		Textures:   len(a.textures),
		Rebuilds:   a.rebuilds,
		Generation: a.generation,
	}
	if total > 0 {
		s.Utilization = float64(used) / float64(total)
	}
	return s
}

// Dispose releases all page surfaces. The atlas must not be used afterwards.
func (a *Atlas) Dispose() {
	for _, p := range a.pages {
		p.surface.Dispose()
	}
	a.pages = nil
	clear(a.images)
	clear(a.textures)
}

// extrude returns src surrounded by pad pixels that repeat its edges.
func extrude(src *image.NRGBA, pad int) *image.NRGBA {
	if pad == 0 {
		return src
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))
	for y := 0; y < h+2*pad; y++ {
		sy := min(max(y-pad, 0), h-1)
		for x := 0; x < w+2*pad; x++ {
			sx := min(max(x-pad, 0), w-1)
			so := src.PixOffset(src.Rect.Min.X+sx, src.Rect.Min.Y+sy)
			do := dst.PixOffset(x, y)
			copy(dst.Pix[do:do+4], src.Pix[so:so+4])
		}
	}
	return dst
}
