package texatlas

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// HitBoxCacheVersion is written into every saved hit-box cache file.
const HitBoxCacheVersion = 1

// HitBoxCache is a grow-only store of computed hit boxes keyed by image
// content hash and algorithm. It is meant to be pre-populated and shipped
// with assets so hit boxes are not recomputed at load time.
//
// HitBoxCache is not safe for concurrent use.
type HitBoxCache struct {
	entries map[string]HitBoxPoints
}

// NewHitBoxCache creates an empty cache.
func NewHitBoxCache() *HitBoxCache {
	return &HitBoxCache{entries: make(map[string]HitBoxPoints)}
}

// HitBoxKey returns the cache key for a hash and algorithm name. The
// algorithm name is case-insensitive.
func HitBoxKey(hash, algorithm string) string {
	return hash + "-" + strings.ToLower(algorithm)
}

// Len returns the number of cached hit boxes.
func (c *HitBoxCache) Len() int { return len(c.entries) }

// Keys returns all keys in sorted order.
func (c *HitBoxCache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the hit box for hash and algorithm.
func (c *HitBoxCache) Get(hash, algorithm string) (HitBoxPoints, bool) {
	pts, ok := c.entries[HitBoxKey(hash, algorithm)]
	return pts, ok
}

// Put stores pts, replacing any previous value for the key. A hit box must
// be empty or a polygon; 1 or 2 points are rejected with
// *InvalidHitBoxError.
func (c *HitBoxCache) Put(hash, algorithm string, pts HitBoxPoints) error {
	key := HitBoxKey(hash, algorithm)
	if n := len(pts); n == 1 || n == 2 {
		return &InvalidHitBoxError{Key: key, Points: n}
	}
	stored := make(HitBoxPoints, len(pts))
	copy(stored, pts)
	c.entries[key] = stored
	return nil
}

// Delete removes one entry and reports whether it existed.
func (c *HitBoxCache) Delete(hash, algorithm string) bool {
	key := HitBoxKey(hash, algorithm)
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes all entries.
func (c *HitBoxCache) Clear() {
	clear(c.entries)
}

// --- serialization ---

type hitBoxFile struct {
	Version int                     `json:"version"`
	Entries map[string][][2]float64 `json:"entries"`
}

// Load merges the cache file at path into c. Entries in the file replace
// existing entries with the same key, so a user cache can be layered on top
// of a shipped default. Paths ending in ".gz" are gunzipped.
func (c *HitBoxCache) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("texatlas: load hit box cache: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("texatlas: load hit box cache %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	if err := c.Decode(r); err != nil {
		return fmt.Errorf("texatlas: load hit box cache %s: %w", path, err)
	}
	return nil
}

// Decode merges a serialized cache from r. Both the versioned format and
// the legacy flat key -> points mapping are accepted.
func (c *HitBoxCache) Decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	// Probe top-level keys to detect format.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parse hit box cache: %w", err)
	}

	var entries map[string][][2]float64
	if _, versioned := probe["version"]; versioned {
		var file hitBoxFile
		if err := json.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse hit box cache: %w", err)
		}
		if file.Version != HitBoxCacheVersion {
			return fmt.Errorf("parse hit box cache: unsupported version %d", file.Version)
		}
		entries = file.Entries
	} else if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse hit box cache: %w", err)
	}

	// Validate everything before merging so a corrupt file changes nothing.
	parsed := make(map[string]HitBoxPoints, len(entries))
	for key, raw := range entries {
		if n := len(raw); n == 1 || n == 2 {
			return &InvalidHitBoxError{Key: key, Points: n}
		}
		pts := make(HitBoxPoints, len(raw))
		for i, p := range raw {
			pts[i] = Vec2{X: p[0], Y: p[1]}
		}
		parsed[key] = pts
	}
	for key, pts := range parsed {
		c.entries[key] = pts
	}
	return nil
}

// Save writes the whole cache to path. indent 0 writes compact JSON for
// shipping; a positive indent pretty-prints with that many spaces for
// inspection. Paths ending in ".gz" are gzipped.
func (c *HitBoxCache) Save(path string, indent int) error {
	var buf bytes.Buffer
	if err := c.Encode(&buf, indent); err != nil {
		return fmt.Errorf("texatlas: save hit box cache %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("texatlas: save hit box cache: %w", err)
	}
	if strings.HasSuffix(path, ".gz") {
		zw := gzip.NewWriter(f)
		if _, err := zw.Write(buf.Bytes()); err != nil {
			f.Close()
			return fmt.Errorf("texatlas: save hit box cache %s: %w", path, err)
		}
		if err := zw.Close(); err != nil {
			f.Close()
			return fmt.Errorf("texatlas: save hit box cache %s: %w", path, err)
		}
	} else if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("texatlas: save hit box cache %s: %w", path, err)
	}
	return f.Close()
}

// Encode serializes the cache to w. See Save for the meaning of indent.
func (c *HitBoxCache) Encode(w io.Writer, indent int) error {
	file := hitBoxFile{
		Version: HitBoxCacheVersion,
		Entries: make(map[string][][2]float64, len(c.entries)),
	}
	for key, pts := range c.entries {
		raw := make([][2]float64, len(pts))
		for i, p := range pts {
			raw[i] = [2]float64{p.X, p.Y}
		}
		file.Entries[key] = raw
	}

	var data []byte
	var err error
	if indent > 0 {
		data, err = json.MarshalIndent(file, "", strings.Repeat(" ", indent))
	} else {
		data, err = json.Marshal(file)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
