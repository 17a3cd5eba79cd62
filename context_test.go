package texatlas

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writePNGFile(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Atlas = AtlasConfig{Width: 64, Height: 64, MaxWidth: 256, MaxHeight: 256, Padding: 1, MaxPages: 1}
	return cfg
}

func newTestContext(t *testing.T, cfg Config) *Context {
	t.Helper()
	c, err := NewContext(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContextRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.HitBox.Algorithm = "pixel"
	if _, err := NewContext(cfg, nil); err == nil {
		t.Error("NewContext should reject an invalid config")
	}
}

func TestContextLoadTexture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hero.png")
	writePNGFile(t, path, diskImage(16, 6))

	c := newTestContext(t, testConfig())
	tex, err := c.LoadTexture(path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width() != 16 || tex.Height() != 16 {
		t.Errorf("size = %dx%d, want 16x16", tex.Width(), tex.Height())
	}
	if !c.Atlas.Has(tex) {
		t.Error("texture should be in the atlas")
	}
	if got, ok := c.Textures.GetFile(path); !ok || got != tex {
		t.Error("texture should be registered under its path")
	}
	if _, ok := c.HitBoxes.Get(tex.Hash(), "simple"); !ok {
		t.Error("hit box should be stored in the cache")
	}

	again, err := c.LoadTexture(path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if again != tex {
		t.Error("second load should return the registered texture")
	}

	// Two loads, two references.
	if err := c.Unload(tex); err != nil {
		t.Fatal(err)
	}
	if !c.Atlas.Has(tex) || !c.Textures.Contains(tex) {
		t.Fatal("texture should stay while referenced")
	}
	if err := c.Unload(tex); err != nil {
		t.Fatal(err)
	}
	if c.Atlas.Has(tex) || c.Textures.Contains(tex) {
		t.Error("texture should be gone after the last Unload")
	}
}

func TestContextLoadTextureSameContentTwoPaths(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	img := solidImage(8, 8, opaqueRed)
	writePNGFile(t, a, img)
	writePNGFile(t, b, img)

	c := newTestContext(t, testConfig())
	ta, err := c.LoadTexture(a, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	tb, err := c.LoadTexture(b, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if ta != tb {
		t.Error("identical images should share one texture")
	}
	if s := c.Atlas.Stats(); s.Images != 1 {
		t.Errorf("atlas images = %d, want 1", s.Images)
	}

	// A different algorithm is a different texture over the same image.
	td, err := c.LoadTexture(a, LoadOptions{HitBox: DetailedHitBox{}})
	if err != nil {
		t.Fatal(err)
	}
	if td != ta {
		t.Error("a loaded path returns its registered texture regardless of options")
	}
	tx, err := c.TextureFromImage(img, LoadOptions{HitBox: BoundingHitBox{}})
	if err != nil {
		t.Fatal(err)
	}
	if tx == ta || tx.Hash() != ta.Hash() {
		t.Error("another algorithm should give a new texture over the same image")
	}
}

func TestContextLoadTextureErrorsNamePath(t *testing.T) {
	dir := t.TempDir()
	c := newTestContext(t, testConfig())

	missing := filepath.Join(dir, "missing.png")
	_, err := c.LoadTexture(missing, LoadOptions{})
	if !errors.Is(err, os.ErrNotExist) || !strings.Contains(err.Error(), missing) {
		t.Errorf("err = %v, want not-exist naming the path", err)
	}

	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.LoadTexture(garbage, LoadOptions{}); err == nil || !strings.Contains(err.Error(), garbage) {
		t.Errorf("err = %v, want decode error naming the path", err)
	}
}

func TestContextLoadTextureOverflowRollsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.png")
	writePNGFile(t, path, solidImage(300, 10, opaqueRed))

	c := newTestContext(t, testConfig())
	_, err := c.LoadTexture(path, LoadOptions{})
	if !errors.Is(err, ErrAtlasFull) {
		t.Fatalf("err = %v, want ErrAtlasFull", err)
	}
	if _, ok := c.Textures.GetFile(path); ok {
		t.Error("failed load should not stay registered under its path")
	}

	tex, err := c.LoadTexture(path, LoadOptions{SkipAtlas: true})
	if err != nil {
		t.Fatal(err)
	}
	if c.Atlas.Has(tex) {
		t.Error("SkipAtlas should keep the texture out of the atlas")
	}
}

func TestContextWeakLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.png")
	writePNGFile(t, path, solidImage(4, 4, opaqueBlue))

	c := newTestContext(t, testConfig())
	tex, err := c.LoadTexture(path, LoadOptions{Weak: true, SkipAtlas: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Textures.strongFiles.Get(path); ok {
		t.Error("weak load should not use the strong tier")
	}
	if got, ok := c.Textures.GetFile(path); !ok || got != tex {
		t.Error("weak texture should be found while referenced")
	}
}

func TestContextHitBoxCacheFile(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "hero.png")
	writePNGFile(t, img, diskImage(16, 6))

	cfg := testConfig()
	cfg.HitBox.CacheFile = filepath.Join(dir, "hitboxes.json.gz")

	c, err := NewContext(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	tex, err := c.LoadTexture(img, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	hash := tex.Hash()
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	c2 := newTestContext(t, cfg)
	if _, ok := c2.HitBoxes.Get(hash, "simple"); !ok {
		t.Error("hit box cache should be reloaded from the saved file")
	}
}

func TestContextLoadSheet(t *testing.T) {
	dir := t.TempDir()
	writePNGFile(t, filepath.Join(dir, "sheet.png"), sheetPage(0))
	jsonPath := filepath.Join(dir, "sheet.json")
	if err := os.WriteFile(jsonPath, []byte(singlePageJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestContext(t, testConfig())
	texs, err := c.LoadSheet(jsonPath, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(texs) != 3 {
		t.Fatalf("textures = %d, want 3", len(texs))
	}
	rot := texs["rotated.png"]
	if rot.Width() != 3 || rot.Height() != 2 {
		t.Errorf("rotated size = %dx%d, want 3x2", rot.Width(), rot.Height())
	}
	if !c.Atlas.Has(rot) {
		t.Error("sheet frames should be in the atlas")
	}
	if got, ok := c.Textures.GetFile(jsonPath + "#rotated.png"); !ok || got != rot {
		t.Error("frame should be registered under its sheet key")
	}

	again, err := c.LoadSheet(jsonPath, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if again["hero.png"] != texs["hero.png"] {
		t.Error("reloading a sheet should reuse registered frames")
	}
}

func TestContextReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hot.png")
	writePNGFile(t, path, solidImage(8, 8, opaqueRed))

	cfg := testConfig()
	cfg.HotReload = true
	// Events are injected below; keep the watcher's own events out of the way.
	cfg.HotReloadDebounce = time.Hour
	c := newTestContext(t, cfg)
	old, err := c.LoadTexture(path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := c.Atlas.Region(old)

	t.Run("same size updates in place", func(t *testing.T) {
		writePNGFile(t, path, solidImage(8, 8, opaqueBlue))
		c.watcher.Events <- path
		reloads, err := c.PollReload()
		if err != nil {
			t.Fatal(err)
		}
		if len(reloads) != 1 || reloads[0].Old != old {
			t.Fatalf("reloads = %+v", reloads)
		}
		next := reloads[0].New
		if reloads[0].Region.Rect() != before.Rect() {
			t.Errorf("region moved from %v to %v", before.Rect(), reloads[0].Region.Rect())
		}
		if got, _ := c.Textures.GetFile(path); got != next {
			t.Error("path should map to the reloaded texture")
		}
		if c.Atlas.Has(old) {
			t.Error("old texture should leave the atlas")
		}
		px, _ := c.Atlas.ReadRegion(next)
		if px.NRGBAAt(0, 0) != opaqueBlue {
			t.Errorf("pixel = %v, want reloaded blue", px.NRGBAAt(0, 0))
		}
		old = next
	})

	t.Run("new size re-added", func(t *testing.T) {
		writePNGFile(t, path, solidImage(12, 4, opaqueRed))
		c.watcher.Events <- path
		reloads, err := c.PollReload()
		if err != nil {
			t.Fatal(err)
		}
		if len(reloads) != 1 {
			t.Fatalf("reloads = %d, want 1", len(reloads))
		}
		if r := reloads[0].Region; r.Width != 12 || r.Height != 4 {
			t.Errorf("region = %dx%d, want 12x4", r.Width, r.Height)
		}
		if c.Atlas.Stats().Images != 1 {
			t.Errorf("atlas images = %d, want 1", c.Atlas.Stats().Images)
		}
	})

	t.Run("decode failure keeps texture", func(t *testing.T) {
		current, _ := c.Textures.GetFile(path)
		if err := os.WriteFile(path, []byte("truncated"), 0o644); err != nil {
			t.Fatal(err)
		}
		c.watcher.Events <- path
		reloads, err := c.PollReload()
		if err == nil || !strings.Contains(err.Error(), path) {
			t.Errorf("err = %v, want decode error naming the path", err)
		}
		if len(reloads) != 0 {
			t.Errorf("reloads = %d, want 0", len(reloads))
		}
		if got, _ := c.Textures.GetFile(path); got != current {
			t.Error("failed reload should keep the current texture")
		}
	})

	t.Run("no events", func(t *testing.T) {
		reloads, err := c.PollReload()
		if err != nil || len(reloads) != 0 {
			t.Errorf("PollReload = %v, %v; want nothing", reloads, err)
		}
	})
}

func TestContextReloadSharedContent(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	writePNGFile(t, a, solidImage(8, 8, opaqueRed))
	writePNGFile(t, b, solidImage(8, 8, opaqueRed))

	cfg := testConfig()
	cfg.HotReload = true
	cfg.HotReloadDebounce = time.Hour
	c := newTestContext(t, cfg)
	shared, err := c.LoadTexture(a, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if tb, err := c.LoadTexture(b, LoadOptions{}); err != nil || tb != shared {
		t.Fatalf("LoadTexture(b) = %v, %v; want the shared texture", tb, err)
	}

	writePNGFile(t, a, solidImage(8, 8, opaqueBlue))
	c.watcher.Events <- a
	reloads, err := c.PollReload()
	if err != nil {
		t.Fatal(err)
	}
	if len(reloads) != 1 || reloads[0].Old != shared {
		t.Fatalf("reloads = %+v", reloads)
	}
	next := reloads[0].New

	if got, ok := c.Textures.GetFile(b); !ok || got != shared {
		t.Errorf("GetFile(b) = %v, %v; want the untouched texture", got, ok)
	}
	if got, ok := c.Textures.GetFile(a); !ok || got != next {
		t.Errorf("GetFile(a) = %v, %v; want the reloaded texture", got, ok)
	}
	if !c.Atlas.Has(shared) || !c.Atlas.Has(next) {
		t.Fatal("both textures should be in the atlas")
	}
	if px, _ := c.Atlas.ReadRegion(shared); px.NRGBAAt(0, 0) != opaqueRed {
		t.Errorf("b's pixel = %v, want red", px.NRGBAAt(0, 0))
	}
	if px, _ := c.Atlas.ReadRegion(next); px.NRGBAAt(0, 0) != opaqueBlue {
		t.Errorf("a's pixel = %v, want blue", px.NRGBAAt(0, 0))
	}
	if s := c.Atlas.Stats(); s.Images != 2 || s.Textures != 2 {
		t.Errorf("atlas = %d images, %d textures; want 2, 2", s.Images, s.Textures)
	}

	// b held the only remaining reference to the old texture.
	if err := c.Unload(shared); err != nil {
		t.Fatal(err)
	}
	if c.Atlas.Has(shared) {
		t.Error("old texture should leave the atlas with its last path")
	}
	if _, ok := c.Textures.GetFile(b); ok {
		t.Error("b should be unregistered")
	}
}

// loadWeakImages registers n distinct weak textures without keeping them.
func loadWeakImages(t *testing.T, c *Context, n int) {
	t.Helper()
	for i := range n {
		if _, err := c.TextureFromImage(solidImage(3+i, 4, opaqueRed), LoadOptions{Weak: true}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestContextSweepReleasesCollectedWeakTextures(t *testing.T) {
	c := newTestContext(t, testConfig())
	strong, err := c.TextureFromImage(solidImage(10, 10, opaqueBlue), LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	loadWeakImages(t, c, 5)
	if s := c.Atlas.Stats(); s.Images != 6 {
		t.Fatalf("atlas images = %d, want 6", s.Images)
	}

	released := 0
	for i := 0; i < 50 && released < 5; i++ {
		runtime.GC()
		time.Sleep(time.Millisecond)
		released += c.Sweep()
	}
	if released != 5 {
		t.Fatalf("released %d weak textures, want 5", released)
	}
	if s := c.Atlas.Stats(); s.Images != 1 || s.Textures != 1 {
		t.Errorf("atlas = %d images, %d textures; want 1, 1", s.Images, s.Textures)
	}
	if !c.Atlas.Has(strong) {
		t.Error("strong texture should stay in the atlas")
	}
}

func TestContextUnloadWeakCancelsRelease(t *testing.T) {
	c := newTestContext(t, testConfig())
	tex, err := c.TextureFromImage(solidImage(6, 6, opaqueRed), LoadOptions{Weak: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Unload(tex); err != nil {
		t.Fatal(err)
	}
	if len(c.weak) != 0 {
		t.Errorf("pending weak releases = %d, want 0", len(c.weak))
	}
	runtime.KeepAlive(tex)
	for range 5 {
		runtime.GC()
		if n := c.Sweep(); n != 0 {
			t.Fatalf("Sweep released %d after Unload", n)
		}
	}
}

func TestContextTextureFromImageEmpty(t *testing.T) {
	c := newTestContext(t, testConfig())
	_, err := c.TextureFromImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)), LoadOptions{})
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("err = %v, want ErrEmptyImage", err)
	}
	if n := c.Textures.Len(); n != 0 {
		t.Errorf("texture cache holds %d textures after a rejected image", n)
	}

	// Skipping the atlas accepts the empty image.
	if _, err := c.TextureFromImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)), LoadOptions{SkipAtlas: true}); err != nil {
		t.Errorf("SkipAtlas: err = %v", err)
	}
}

func TestContextPollReloadWithoutHotReload(t *testing.T) {
	c := newTestContext(t, testConfig())
	reloads, err := c.PollReload()
	if reloads != nil || err != nil {
		t.Errorf("PollReload = %v, %v; want nil, nil", reloads, err)
	}
}

func TestContextSetDebugMode(t *testing.T) {
	c := newTestContext(t, testConfig())
	c.SetDebugMode(true)
	defer SetDebugMode(false)
	if !globalDebug || !c.Atlas.debug {
		t.Error("SetDebugMode should reach the atlas and the package")
	}
}
