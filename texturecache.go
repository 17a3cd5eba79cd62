package texatlas

import (
	"fmt"
	"sort"
	"weak"
)

// TextureBucket is a name -> texture mapping with a fixed ownership policy.
type TextureBucket interface {
	// Get returns the texture stored under key.
	Get(key string) (*Texture, bool)
	// Put stores t under key, replacing any previous entry.
	Put(key string, t *Texture)
	// Delete removes key and reports whether it was present.
	Delete(key string) bool
	// DeleteTexture removes every key whose value is t and returns how many
	// were removed.
	DeleteTexture(t *Texture) int
	// All returns the live textures ordered by key.
	All() []*Texture
	// Len returns the number of live entries.
	Len() int
	// Clear removes all entries.
	Clear()
}

// NewStrongBucket returns a bucket that keeps its textures alive.
func NewStrongBucket() TextureBucket {
	return &strongBucket{entries: make(map[string]*Texture)}
}

// NewWeakBucket returns a bucket that does not keep its textures alive.
// Entries vanish once the garbage collector reclaims the texture; expired
// entries are swept lazily on access.
func NewWeakBucket() TextureBucket {
	return &weakBucket{entries: make(map[string]weak.Pointer[Texture])}
}

// --- strong ---

type strongBucket struct {
	entries map[string]*Texture
}

func (b *strongBucket) Get(key string) (*Texture, bool) {
	t, ok := b.entries[key]
	return t, ok
}

func (b *strongBucket) Put(key string, t *Texture) { b.entries[key] = t }

func (b *strongBucket) Delete(key string) bool {
	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok
}

func (b *strongBucket) DeleteTexture(t *Texture) int {
	n := 0
	for k, v := range b.entries {
		if v == t {
			delete(b.entries, k)
			n++
		}
	}
	return n
}

func (b *strongBucket) All() []*Texture {
	out := make([]*Texture, 0, len(b.entries))
	for _, k := range sortedKeys(b.entries) {
		out = append(out, b.entries[k])
	}
	return out
}

func (b *strongBucket) Len() int { return len(b.entries) }
func (b *strongBucket) Clear()   { clear(b.entries) }

// --- weak ---

type weakBucket struct {
	entries map[string]weak.Pointer[Texture]
}

func (b *weakBucket) Get(key string) (*Texture, bool) {
	p, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	t := p.Value()
	if t == nil {
		delete(b.entries, key)
		return nil, false
	}
	return t, true
}

func (b *weakBucket) Put(key string, t *Texture) { b.entries[key] = weak.Make(t) }

func (b *weakBucket) Delete(key string) bool {
	_, ok := b.Get(key)
	delete(b.entries, key)
	return ok
}

func (b *weakBucket) DeleteTexture(t *Texture) int {
	n := 0
	for k, p := range b.entries {
		switch v := p.Value(); {
		case v == nil:
			delete(b.entries, k)
		case v == t:
			delete(b.entries, k)
			n++
		}
	}
	return n
}

func (b *weakBucket) All() []*Texture {
	b.sweep()
	out := make([]*Texture, 0, len(b.entries))
	for _, k := range sortedKeys(b.entries) {
		if t := b.entries[k].Value(); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (b *weakBucket) Len() int {
	b.sweep()
	return len(b.entries)
}

func (b *weakBucket) Clear() { clear(b.entries) }

func (b *weakBucket) sweep() {
	for k, p := range b.entries {
		if p.Value() == nil {
			delete(b.entries, k)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- delete keys ---

// DeleteKey selects what TextureCache.Delete removes. It is implemented by
// ByTexture, ByName and ByFile only.
type DeleteKey interface {
	deleteKey()
}

// ByTexture deletes a texture object: its cache name from the name buckets
// and every file-path entry that points at it.
type ByTexture struct{ Texture *Texture }

// ByName deletes a cache name from the name buckets only.
type ByName string

// ByFile deletes a file path from the file buckets only.
type ByFile string

func (ByTexture) deleteKey() {}
func (ByName) deleteKey()    {}
func (ByFile) deleteKey()    {}

// --- cache ---

// TextureCache de-duplicates textures by cache name and by source file path.
// Each key family has a strong tier, which owns its textures, and a weak
// tier, whose entries disappear once no one else references the texture.
//
// TextureCache is not safe for concurrent use. Callers that get a texture
// from the weak tier must keep the returned pointer rather than re-query.
type TextureCache struct {
	strongNames TextureBucket
	weakNames   TextureBucket
	strongFiles TextureBucket
	weakFiles   TextureBucket
}

// NewTextureCache creates an empty cache.
func NewTextureCache() *TextureCache {
	return &TextureCache{
		strongNames: NewStrongBucket(),
		weakNames:   NewWeakBucket(),
		strongFiles: NewStrongBucket(),
		weakFiles:   NewWeakBucket(),
	}
}

func (c *TextureCache) tier(strong bool) (names, files TextureBucket) {
	if strong {
		return c.strongNames, c.strongFiles
	}
	return c.weakNames, c.weakFiles
}

// Put registers t under its cache name in the strong or weak tier. If
// filePath is not empty, t is also registered under that path in the same
// tier; a path already held by a different texture in that tier is
// rejected with *DuplicatePathError and nothing is registered.
func (c *TextureCache) Put(t *Texture, filePath string, strong bool) error {
	names, files := c.tier(strong)
	if filePath != "" {
		if existing, ok := files.Get(filePath); ok && existing != t {
			return &DuplicatePathError{Path: filePath, Strong: strong}
		}
	}
	names.Put(t.CacheName(), t)
	if filePath != "" {
		files.Put(filePath, t)
	}
	return nil
}

// Get returns the texture with the given cache name, strong tier first.
func (c *TextureCache) Get(name string) (*Texture, bool) {
	if t, ok := c.strongNames.Get(name); ok {
		return t, true
	}
	return c.weakNames.Get(name)
}

// GetWithConfig returns the untransformed texture for an image hash and
// hit-box algorithm.
func (c *TextureCache) GetWithConfig(hash string, algorithm HitBoxAlgorithm) (*Texture, bool) {
	return c.Get(CacheName(hash, algorithm, IdentityOrder))
}

// GetFile returns the texture loaded from filePath, strong tier first.
func (c *TextureCache) GetFile(filePath string) (*Texture, bool) {
	if t, ok := c.strongFiles.Get(filePath); ok {
		return t, true
	}
	return c.weakFiles.Get(filePath)
}

// Delete removes entries selected by key from both tiers. Unless ignoreErr
// is set, ErrTextureNotFound is returned when a ByTexture or ByName key is
// absent from both name buckets, or a ByFile key from both file buckets.
// The reverse file-path search of ByTexture never fails.
func (c *TextureCache) Delete(key DeleteKey, ignoreErr bool) error {
	var found bool
	var what string
	switch k := key.(type) {
	case ByTexture:
		if k.Texture == nil {
			return fmt.Errorf("texatlas: delete: nil texture")
		}
		what = k.Texture.CacheName()
		found = c.deleteName(what)
		c.strongFiles.DeleteTexture(k.Texture)
		c.weakFiles.DeleteTexture(k.Texture)
	case ByName:
		what = string(k)
		found = c.deleteName(what)
	case ByFile:
		what = string(k)
		s := c.strongFiles.Delete(what)
		w := c.weakFiles.Delete(what)
		found = s || w
	default:
		return fmt.Errorf("texatlas: delete: unsupported key %T", key)
	}
	if !found && !ignoreErr {
		return fmt.Errorf("%w: %q", ErrTextureNotFound, what)
	}
	return nil
}

func (c *TextureCache) deleteName(name string) bool {
	s := c.strongNames.Delete(name)
	w := c.weakNames.Delete(name)
	return s || w
}

// DeleteName is shorthand for Delete(ByName(name), true).
func (c *TextureCache) DeleteName(name string) {
	_ = c.Delete(ByName(name), true)
}

// DeleteFile is shorthand for Delete(ByFile(path), true).
func (c *TextureCache) DeleteFile(path string) {
	_ = c.Delete(ByFile(path), true)
}

// All returns the textures of all four buckets concatenated. A texture
// registered under both a name and a path appears more than once.
func (c *TextureCache) All() []*Texture {
	var out []*Texture
	out = append(out, c.strongNames.All()...)
	out = append(out, c.weakNames.All()...)
	out = append(out, c.strongFiles.All()...)
	out = append(out, c.weakFiles.All()...)
	return out
}

// Len returns the number of distinct textures in the cache.
func (c *TextureCache) Len() int {
	seen := make(map[*Texture]struct{})
	for _, t := range c.All() {
		seen[t] = struct{}{}
	}
	return len(seen)
}

// Contains reports whether t is registered in any bucket.
func (c *TextureCache) Contains(t *Texture) bool {
	for _, v := range c.All() {
		if v == t {
			return true
		}
	}
	return false
}

// Clear empties all four buckets.
func (c *TextureCache) Clear() {
	c.strongNames.Clear()
	c.weakNames.Clear()
	c.strongFiles.Clear()
	c.weakFiles.Clear()
}
