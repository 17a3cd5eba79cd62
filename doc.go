// Package texatlas manages textures for 2D games built on [Ebitengine]:
// collision hit boxes computed from image alpha, a two-tier texture cache
// and a dynamic texture atlas that packs images into shared pages.
//
// # Quick start
//
// Create a [Context] at startup and load textures through it:
//
//	cfg := texatlas.DefaultConfig()
//	cfg.HitBox.CacheFile = "assets/hitboxes.json.gz"
//	ctx, err := texatlas.NewContext(cfg, texatlas.NewEbitenSurface)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	hero, err := ctx.LoadTexture("assets/hero.png", texatlas.LoadOptions{})
//	region, _ := ctx.Atlas.Region(hero)
//
// The page image for a region is ctx.Atlas.Page(region.Page); with GPU pages
// it is an [EbitenSurface] whose Image method returns the *ebiten.Image to
// draw from. [Atlas.TextureCoords] returns per-corner UVs with the texture's
// flips and rotations applied.
//
// # Hit boxes
//
// Three algorithms compute a polygon from the opaque pixels of an image:
// [BoundingHitBox] ("none"), [SimpleHitBox] and [DetailedHitBox]. Points are
// centered on the image, Y-up and counter-clockwise, ready for chipmunk
// shapes via [NewHitBoxShape]. Results are memoized in a [HitBoxCache] that
// can be saved and shipped with assets.
//
// # Textures and caching
//
// A [Texture] is a light configuration over shared [ImageData]: a hit-box
// algorithm and a vertex order. Flips and rotations return new textures
// over the same pixels. [TextureCache] de-duplicates textures by cache name
// and by file path, with a strong tier that owns its entries and a weak
// tier that forgets textures nobody else references.
//
// # Atlas
//
// [Atlas] packs each distinct image once, grows its pages up to a limit and
// can open further pages. Regions carry a generation number; any region
// obtained before [Atlas.Rebuild] or growth is stale afterwards.
//
// # Threading
//
// Nothing in this package is safe for concurrent use. GPU surfaces must be
// touched only from the goroutine that runs the game loop, and hot reload
// is applied there by [Context.PollReload]; the file [Watcher] goroutine
// only reports paths.
//
// [Ebitengine]: https://ebitengine.org
package texatlas
