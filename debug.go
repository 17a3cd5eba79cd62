package texatlas

import (
	"fmt"
	"os"
	"time"
)

// globalDebug gates package-wide debug output. Set via SetDebugMode or
// Context.SetDebugMode.
var globalDebug bool

// SetDebugMode enables or disables package-wide debug output on stderr.
func SetDebugMode(enabled bool) {
	globalDebug = enabled
}

// debugLogf prints a prefixed line to stderr.
func debugLogf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "[texatlas] "+format+"\n", args...)
}

// debugLogRebuild prints atlas occupancy after a repack.
func debugLogRebuild(s AtlasStats) {
	_, _ = fmt.Fprintf(os.Stderr,
		"[texatlas] rebuild #%d (gen %d): %d page(s) %dx%d | images: %d | textures: %d | used: %.1f%%\n",
		s.Rebuilds, s.Generation, s.Pages, s.Width, s.Height, s.Images, s.Textures, s.Utilization*100)
}

// debugLogHitBox reports a hit-box computation that missed the cache.
func debugLogHitBox(key string, points int, took time.Duration) {
	if !globalDebug {
		return
	}
	_, _ = fmt.Fprintf(os.Stderr, "[texatlas] hit box %s: %d points in %v\n", key, points, took)
}

// debugLogLoad reports a texture load and whether it came from the cache.
func debugLogLoad(path, name string, cached bool) {
	if !globalDebug {
		return
	}
	src := "decoded"
	if cached {
		src = "cached"
	}
	_, _ = fmt.Fprintf(os.Stderr, "[texatlas] load %s -> %s (%s)\n", path, name, src)
}

// debugLogStats prints a summary of a context's caches and atlas.
func debugLogStats(s AtlasStats, hitBoxes, textures int) {
	_, _ = fmt.Fprintf(os.Stderr,
		"[texatlas] pages: %d (%dx%d) | used: %.1f%% | rebuilds: %d | hit boxes: %d | textures: %d\n",
		s.Pages, s.Width, s.Height, s.Utilization*100, s.Rebuilds, hitBoxes, textures)
}
