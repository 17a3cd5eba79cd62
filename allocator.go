package texatlas

import (
	"image"
	"sort"
)

// GuillotineAllocator packs rectangles into a fixed area by keeping a list
// of disjoint free rectangles. Each allocation takes the first free
// rectangle that fits, largest first, and splits the remainder in two along
// the shorter leftover axis. Leftovers and freed rectangles return to the
// list merged with free neighbors sharing a full edge; nothing already
// placed is ever moved.
//
// The algorithm trades packing density for predictable, cheap add/remove.
// Fragmentation accumulates until the owner repacks everything with Reset.
type GuillotineAllocator struct {
	width    int
	height   int
	free     []image.Rectangle
	usedArea int
}

// NewGuillotineAllocator creates an allocator for a width x height area.
func NewGuillotineAllocator(width, height int) *GuillotineAllocator {
	a := &GuillotineAllocator{width: width, height: height}
	a.Reset()
	return a
}

// Allocate finds space for a w x h rectangle.
func (a *GuillotineAllocator) Allocate(w, h int) (image.Rectangle, bool) {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	for i, f := range a.free {
		fw, fh := f.Dx(), f.Dy()
		if w > fw || h > fh {
			continue
		}
		placed := image.Rect(f.Min.X, f.Min.Y, f.Min.X+w, f.Min.Y+h)
		a.free = append(a.free[:i], a.free[i+1:]...)

		var right, below image.Rectangle
		if fw-w < fh-h {
			// Short leftover is to the right: keep it a strip of height h.
			right = image.Rect(placed.Max.X, f.Min.Y, f.Max.X, placed.Max.Y)
			below = image.Rect(f.Min.X, placed.Max.Y, f.Max.X, f.Max.Y)
		} else {
			right = image.Rect(placed.Max.X, f.Min.Y, f.Max.X, f.Max.Y)
			below = image.Rect(f.Min.X, placed.Max.Y, placed.Max.X, f.Max.Y)
		}
		if !right.Empty() {
			a.insertFree(right)
		}
		if !below.Empty() {
			a.insertFree(below)
		}
		a.sortFree()
		a.usedArea += w * h
		return placed, true
	}
	return image.Rectangle{}, false
}

// CanFit reports whether a w x h rectangle would currently fit.
func (a *GuillotineAllocator) CanFit(w, h int) bool {
	for _, f := range a.free {
		if w <= f.Dx() && h <= f.Dy() {
			return true
		}
	}
	return false
}

// Free returns a previously allocated rectangle to the free list.
func (a *GuillotineAllocator) Free(r image.Rectangle) {
	if r.Empty() {
		return
	}
	a.usedArea -= r.Dx() * r.Dy()
	a.insertFree(r)
	a.sortFree()
}

// Reset forgets all allocations.
func (a *GuillotineAllocator) Reset() {
	a.free = append(a.free[:0], image.Rect(0, 0, a.width, a.height))
	a.usedArea = 0
}

// Size returns the allocator's area dimensions.
func (a *GuillotineAllocator) Size() (width, height int) {
	return a.width, a.height
}

// UsedArea returns the total area of live allocations.
func (a *GuillotineAllocator) UsedArea() int {
	return a.usedArea
}

// Utilization returns the fraction of the area in use (0.0 to 1.0).
func (a *GuillotineAllocator) Utilization() float64 {
	total := a.width * a.height
	if total <= 0 {
		return 0
	}
	return float64(a.usedArea) / float64(total)
}

// FreeRects returns a copy of the free list, largest first.
func (a *GuillotineAllocator) FreeRects() []image.Rectangle {
	out := make([]image.Rectangle, len(a.free))
	copy(out, a.free)
	return out
}

func (a *GuillotineAllocator) sortFree() {
	sort.SliceStable(a.free, func(i, j int) bool {
		ai := a.free[i].Dx() * a.free[i].Dy()
		aj := a.free[j].Dx() * a.free[j].Dy()
		if ai != aj {
			return ai > aj
		}
		if a.free[i].Min.Y != a.free[j].Min.Y {
			return a.free[i].Min.Y < a.free[j].Min.Y
		}
		return a.free[i].Min.X < a.free[j].Min.X
	})
}

// insertFree adds r to the free list, first absorbing every free neighbor
// that shares a complete edge with it. No two rectangles already on the list
// can be joined, so only r and its growing union need checking. The list is
// left unsorted.
func (a *GuillotineAllocator) insertFree(r image.Rectangle) {
	for i := 0; i < len(a.free); {
		u, ok := joinRects(r, a.free[i])
		if !ok {
			i++
			continue
		}
		r = u
		a.free[i] = a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		i = 0
	}
	a.free = append(a.free, r)
}

func joinRects(r, s image.Rectangle) (image.Rectangle, bool) {
	if r.Min.X == s.Min.X && r.Max.X == s.Max.X && (r.Max.Y == s.Min.Y || s.Max.Y == r.Min.Y) {
		return r.Union(s), true
	}
	if r.Min.Y == s.Min.Y && r.Max.Y == s.Max.Y && (r.Max.X == s.Min.X || s.Max.X == r.Min.X) {
		return r.Union(s), true
	}
	return image.Rectangle{}, false
}
