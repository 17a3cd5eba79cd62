package texatlas

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// LoadOptions controls how a texture is created and registered.
type LoadOptions struct {
	// HitBox overrides the configured hit-box algorithm when non-nil.
	HitBox HitBoxAlgorithm
	// Weak registers the texture in the weak tier of the texture cache, so
	// it is forgotten once the caller drops it. The atlas reference taken
	// for it is released by the next Sweep after the garbage collector
	// reclaims the texture. The default is strong.
	Weak bool
	// SkipAtlas leaves the texture out of the atlas.
	SkipAtlas bool
}

// Reload describes a texture replaced by Context.PollReload. Callers holding
// Old should switch to New.
type Reload struct {
	Path     string
	Old, New *Texture
	Region   AtlasRegion // zero when the texture is not in the atlas
}

// Context owns the caches and the atlas of one rendering context. Create it
// at startup with NewContext and release it with Close.
//
// Context is not safe for concurrent use; with GPU surfaces it must be used
// from the rendering goroutine only.
type Context struct {
	HitBoxes *HitBoxCache
	Textures *TextureCache
	Atlas    *Atlas

	cfg     Config
	algo    HitBoxAlgorithm
	watcher *Watcher
	files   map[string]LoadOptions
	debug   bool
	closed  bool

	// Atlas references held for weak textures, released by Sweep once the
	// texture is collected.
	weak    map[uint64]weakRef
	weakSeq uint64

	expiredMu sync.Mutex
	expired   []uint64
}

type weakRef struct {
	name    string
	cleanup runtime.Cleanup
}

// NewContext creates a context from cfg. surfaces creates atlas pages; nil
// selects CPU pages (NewImageSurface). If cfg.HitBox.CacheFile exists it is
// loaded into the hit-box cache.
func NewContext(cfg Config, surfaces SurfaceFactory) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	atlas, err := NewAtlas(cfg.Atlas, surfaces)
	if err != nil {
		return nil, err
	}
	c := &Context{
		HitBoxes: NewHitBoxCache(),
		Textures: NewTextureCache(),
		Atlas:    atlas,
		cfg:      cfg,
		algo:     cfg.HitBoxAlgorithm(),
		files:    make(map[string]LoadOptions),
		weak:     make(map[uint64]weakRef),
	}
	if cfg.HitBox.CacheFile != "" {
		if err := c.HitBoxes.Load(cfg.HitBox.CacheFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			atlas.Dispose()
			return nil, err
		}
	}
	if cfg.HotReload {
		w, err := NewWatcher(cfg.HotReloadDebounce)
		if err != nil {
			atlas.Dispose()
			return nil, fmt.Errorf("texatlas: hot reload: %w", err)
		}
		c.watcher = w
	}
	if cfg.Debug {
		c.SetDebugMode(true)
	}
	return c, nil
}

// Config returns the configuration the context was created with.
func (c *Context) Config() Config { return c.cfg }

// SetDebugMode enables or disables debug output for the context, its atlas
// and the package.
func (c *Context) SetDebugMode(enabled bool) {
	c.debug = enabled
	c.Atlas.SetDebugMode(enabled)
	SetDebugMode(enabled)
}

func (c *Context) algorithm(opts LoadOptions) HitBoxAlgorithm {
	if opts.HitBox != nil {
		return opts.HitBox
	}
	return c.algo
}

// LoadTexture returns the texture for the image file at path, loading it on
// first use. A path already loaded returns the registered texture; an image
// whose content and hit-box algorithm match a registered texture reuses it.
// Unless opts.SkipAtlas is set the texture is added to the atlas, taking one
// reference that Unload releases.
func (c *Context) LoadTexture(path string, opts LoadOptions) (*Texture, error) {
	if t, ok := c.Textures.GetFile(path); ok {
		debugLogLoad(path, t.CacheName(), true)
		if err := c.addToAtlas(t, opts); err != nil {
			return nil, fmt.Errorf("texatlas: load texture %s: %w", path, err)
		}
		return t, nil
	}

	data, err := LoadImageData(path)
	if err != nil {
		return nil, fmt.Errorf("texatlas: load texture %s: %w", path, err)
	}
	t, err := c.textureFor(data, opts)
	if err != nil {
		return nil, fmt.Errorf("texatlas: load texture %s: %w", path, err)
	}
	if err := c.Textures.Put(t, path, !opts.Weak); err != nil {
		return nil, err
	}
	if err := c.addToAtlas(t, opts); err != nil {
		c.Textures.DeleteFile(path)
		return nil, fmt.Errorf("texatlas: load texture %s: %w", path, err)
	}
	c.files[path] = opts
	if c.watcher != nil {
		if err := c.watcher.Add(path); err != nil {
			Logger().Warn("texatlas: watch failed", "path", path, "err", err)
		}
	}
	debugLogLoad(path, t.CacheName(), false)
	return t, nil
}

// TextureFromImage creates (or reuses) a texture for img, registers it by
// cache name and adds it to the atlas unless opts.SkipAtlas is set.
func (c *Context) TextureFromImage(img image.Image, opts LoadOptions) (*Texture, error) {
	t, err := c.textureFor(NewImageData(img), opts)
	if err != nil {
		return nil, err
	}
	if err := c.addToAtlas(t, opts); err != nil {
		return nil, err
	}
	if err := c.Textures.Put(t, "", !opts.Weak); err != nil {
		c.releaseAtlas(t, opts)
		return nil, err
	}
	return t, nil
}

// textureFor returns the registered texture for data and the selected
// algorithm, or builds a new one.
func (c *Context) textureFor(data *ImageData, opts LoadOptions) (*Texture, error) {
	algo := c.algorithm(opts)
	if t, ok := c.Textures.GetWithConfig(data.Hash, algo); ok {
		return t, nil
	}
	return NewTexture(data, algo, c.HitBoxes)
}

func (c *Context) addToAtlas(t *Texture, opts LoadOptions) error {
	if opts.SkipAtlas {
		return nil
	}
	if _, err := c.Atlas.Add(t); err != nil {
		return err
	}
	if opts.Weak {
		c.watchWeak(t)
	}
	return nil
}

// releaseAtlas undoes addToAtlas.
func (c *Context) releaseAtlas(t *Texture, opts LoadOptions) {
	if opts.SkipAtlas {
		return
	}
	if opts.Weak {
		c.unwatchWeak(t.CacheName())
	}
	_ = c.Atlas.Remove(t)
}

// watchWeak queues one atlas release of t's cache name for when t is
// collected. The cleanup must not reference t.
func (c *Context) watchWeak(t *Texture) {
	c.weakSeq++
	id := c.weakSeq
	c.weak[id] = weakRef{
		name:    t.CacheName(),
		cleanup: runtime.AddCleanup(t, c.expire, id),
	}
}

// unwatchWeak cancels one pending weak release of name and reports whether
// there was one.
func (c *Context) unwatchWeak(name string) bool {
	for id, w := range c.weak {
		if w.name == name {
			w.cleanup.Stop()
			delete(c.weak, id)
			return true
		}
	}
	return false
}

// expire runs on the runtime's cleanup goroutine.
func (c *Context) expire(id uint64) {
	c.expiredMu.Lock()
	c.expired = append(c.expired, id)
	c.expiredMu.Unlock()
}

// Sweep releases the atlas references of weak textures the garbage
// collector has reclaimed and returns how many were released. PollReload
// calls it; call it directly when PollReload is not used.
func (c *Context) Sweep() int {
	c.expiredMu.Lock()
	ids := c.expired
	c.expired = nil
	c.expiredMu.Unlock()

	n := 0
	for _, id := range ids {
		w, ok := c.weak[id]
		if !ok {
			continue
		}
		delete(c.weak, id)
		if err := c.Atlas.removeName(w.name); err != nil {
			debugLogf("sweep %s: %v", w.name, err)
			continue
		}
		n++
	}
	return n
}

// LoadSheet loads a TexturePacker sheet and returns one texture per frame,
// keyed by frame name. Page images are resolved relative to the JSON file.
// Frames are registered under "<jsonPath>#<frame>" file keys.
func (c *Context) LoadSheet(jsonPath string, opts LoadOptions) (map[string]*Texture, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("texatlas: load sheet %s: %w", jsonPath, err)
	}
	sheet, err := ParseSheet(raw)
	if err != nil {
		return nil, fmt.Errorf("texatlas: load sheet %s: %w", jsonPath, err)
	}
	dir := filepath.Dir(jsonPath)
	pages := make([]image.Image, len(sheet.Pages))
	for i, name := range sheet.Pages {
		if name == "" {
			return nil, fmt.Errorf("texatlas: load sheet %s: page %d has no image name", jsonPath, i)
		}
		data, err := LoadImageData(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("texatlas: load sheet %s: %w", jsonPath, err)
		}
		pages[i] = data.Image
	}
	frames, err := sheet.Slice(pages)
	if err != nil {
		return nil, fmt.Errorf("texatlas: load sheet %s: %w", jsonPath, err)
	}

	out := make(map[string]*Texture, len(frames))
	for _, f := range sheet.Frames {
		key := jsonPath + "#" + f.Name
		if t, ok := c.Textures.GetFile(key); ok {
			if err := c.addToAtlas(t, opts); err != nil {
				return nil, fmt.Errorf("texatlas: load sheet %s: %w", jsonPath, err)
			}
			out[f.Name] = t
			continue
		}
		t, err := c.textureFor(frames[f.Name], opts)
		if err != nil {
			return nil, fmt.Errorf("texatlas: load sheet %s: frame %q: %w", jsonPath, f.Name, err)
		}
		if err := c.Textures.Put(t, key, !opts.Weak); err != nil {
			return nil, err
		}
		if err := c.addToAtlas(t, opts); err != nil {
			c.Textures.DeleteFile(key)
			return nil, fmt.Errorf("texatlas: load sheet %s: frame %q: %w", jsonPath, f.Name, err)
		}
		c.files[key] = opts
		out[f.Name] = t
	}
	return out, nil
}

// Unload releases one atlas reference to t. Once the atlas no longer holds
// t it is also removed from the texture cache and from hot reload.
func (c *Context) Unload(t *Texture) error {
	if c.Atlas.Has(t) {
		if err := c.Atlas.Remove(t); err != nil {
			return err
		}
		c.unwatchWeak(t.CacheName())
		if c.Atlas.Has(t) {
			return nil
		}
	}
	for path := range c.files {
		if ft, ok := c.Textures.GetFile(path); ok && ft == t {
			delete(c.files, path)
			if c.watcher != nil {
				_ = c.watcher.Remove(path)
			}
		}
	}
	return c.Textures.Delete(ByTexture{Texture: t}, true)
}

// PollReload applies pending hot-reload events without blocking. Call it
// once per frame from the rendering goroutine. It first runs Sweep. Changed
// files are decoded again; the atlas is updated in place when the size is
// unchanged, and the texture is re-added otherwise. Files that fail to
// decode keep their old texture and are reported in the returned error.
func (c *Context) PollReload() ([]Reload, error) {
	c.Sweep()
	if c.watcher == nil {
		return nil, nil
	}
	var reloads []Reload
	var errs []error
	for {
		select {
		case path, ok := <-c.watcher.Events:
			if !ok {
				return reloads, errors.Join(errs...)
			}
			r, err := c.reload(path)
			if err != nil {
				Logger().Warn("texatlas: reload failed", "path", path, "err", err)
				errs = append(errs, err)
				continue
			}
			if r.New != nil {
				reloads = append(reloads, r)
			}
		case err, ok := <-c.watcher.Errors:
			if ok {
				errs = append(errs, fmt.Errorf("texatlas: hot reload: %w", err))
			}
		default:
			return reloads, errors.Join(errs...)
		}
	}
}

// reload re-reads path and swaps the texture registered for it. Other paths
// whose identical content shares the old texture keep it: the reloaded path
// gives up one atlas reference to old and takes one to the new texture.
func (c *Context) reload(path string) (Reload, error) {
	old, ok := c.Textures.GetFile(path)
	if !ok {
		return Reload{}, nil
	}
	data, err := LoadImageData(path)
	if err != nil {
		return Reload{}, fmt.Errorf("texatlas: reload %s: %w", path, err)
	}
	if data.Hash == old.Hash() {
		return Reload{}, nil
	}
	opts := c.files[path]
	opts.HitBox = old.HitBoxAlgorithm()
	t, err := c.textureFor(data, opts)
	if err != nil {
		return Reload{}, fmt.Errorf("texatlas: reload %s: %w", path, err)
	}

	r := Reload{Path: path, Old: old, New: t}
	shared := c.shared(old, path)
	switch {
	case !c.Atlas.Has(old):
	case shared:
		if err := c.addToAtlas(t, opts); err != nil {
			return Reload{}, fmt.Errorf("texatlas: reload %s: %w", path, err)
		}
		c.releaseAtlas(old, opts)
	default:
		refs := c.retargetWeak(old.CacheName())
		if _, err := c.Atlas.Replace(old, t); err != nil {
			for range refs {
				c.watchWeak(old)
			}
			return Reload{}, fmt.Errorf("texatlas: reload %s: %w", path, err)
		}
		for range refs {
			c.watchWeak(t)
		}
	}
	r.Region, _ = c.Atlas.Region(t)

	if shared {
		c.Textures.DeleteFile(path)
	} else {
		_ = c.Textures.Delete(ByTexture{Texture: old}, true)
	}
	if err := c.Textures.Put(t, path, !opts.Weak); err != nil {
		return Reload{}, err
	}
	return r, nil
}

// shared reports whether another loaded path resolves to t.
func (c *Context) shared(t *Texture, path string) bool {
	for p := range c.files {
		if p == path {
			continue
		}
		if ft, ok := c.Textures.GetFile(p); ok && ft == t {
			return true
		}
	}
	return false
}

// retargetWeak cancels every pending weak release of name and returns how
// many there were, so they can be registered again on a replacement.
func (c *Context) retargetWeak(name string) int {
	n := 0
	for c.unwatchWeak(name) {
		n++
	}
	return n
}

// Close saves the hit-box cache to the configured file, stops hot reload
// and releases the atlas pages. The context must not be used afterwards.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	if c.watcher != nil {
		errs = append(errs, c.watcher.Close())
	}
	if c.cfg.HitBox.CacheFile != "" {
		errs = append(errs, c.HitBoxes.Save(c.cfg.HitBox.CacheFile, c.cfg.HitBox.SaveIndent))
	}
	if c.debug {
		debugLogStats(c.Atlas.Stats(), c.HitBoxes.Len(), c.Textures.Len())
	}
	for id, w := range c.weak {
		w.cleanup.Stop()
		delete(c.weak, id)
	}
	c.Atlas.Dispose()
	c.Textures.Clear()
	return errors.Join(errs...)
}
