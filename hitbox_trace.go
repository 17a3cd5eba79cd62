package texatlas

import (
	"image"
	"math"
)

// Contour tracing works on a grid of alpha samples, one per pixel center,
// padded with a ring of transparent samples so every region yields a closed
// loop. Coordinates are doubled so edge midpoints stay integral.

type contourSegment struct {
	from, to image.Point
}

// traceContours returns every closed outline of the opaque pixels of m in
// image space (Y down, pixel edges on integer coordinates). Outlines keep
// the opaque region on their left as seen on screen. Saddle cells are
// resolved as two separate corners, so diagonal-only neighbors do not join.
func traceContours(m *alphaMask) [][]Vec2 {
	var segs []contourSegment
	next := make(map[image.Point]image.Point)

	for y := -1; y < m.h; y++ {
		for x := -1; x < m.w; x++ {
			segs = appendCellSegments(segs, next, m, x, y)
		}
	}

	visited := make(map[image.Point]bool, len(segs))
	var loops [][]Vec2
	for _, s := range segs {
		if visited[s.from] {
			continue
		}
		var loop []Vec2
		p := s.from
		for !visited[p] {
			visited[p] = true
			loop = append(loop, Vec2{X: float64(p.X)/2 + 0.5, Y: float64(p.Y)/2 + 0.5})
			n, ok := next[p]
			if !ok {
				break
			}
			p = n
		}
		if len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}

// appendCellSegments emits the oriented boundary segments of the cell whose
// top-left sample is (x, y).
func appendCellSegments(segs []contourSegment, next map[image.Point]image.Point, m *alphaMask, x, y int) []contourSegment {
	tl, tr := m.opaque(x, y), m.opaque(x+1, y)
	br, bl := m.opaque(x+1, y+1), m.opaque(x, y+1)

	cTL := image.Pt(2*x, 2*y)
	cTR := image.Pt(2*x+2, 2*y)
	cBR := image.Pt(2*x+2, 2*y+2)
	cBL := image.Pt(2*x, 2*y+2)

	top := image.Pt(2*x+1, 2*y)
	right := image.Pt(2*x+2, 2*y+1)
	bottom := image.Pt(2*x+1, 2*y+2)
	left := image.Pt(2*x, 2*y+1)

	emit := func(a, b, inside image.Point) {
		if cross(b.Sub(a), inside.Sub(a)) > 0 {
			a, b = b, a
		}
		segs = append(segs, contourSegment{from: a, to: b})
		next[a] = b
	}

	var edges [4]image.Point
	n := 0
	if tl != tr {
		edges[n] = top
		n++
	}
	if tr != br {
		edges[n] = right
		n++
	}
	if br != bl {
		edges[n] = bottom
		n++
	}
	if bl != tl {
		edges[n] = left
		n++
	}

	switch n {
	case 2:
		var inside image.Point
		switch {
		case tl:
			inside = cTL
		case tr:
			inside = cTR
		case br:
			inside = cBR
		default:
			inside = cBL
		}
		emit(edges[0], edges[1], inside)
	case 4:
		if tl {
			emit(left, top, cTL)
			emit(right, bottom, cBR)
		} else {
			emit(top, right, cTR)
			emit(bottom, left, cBL)
		}
	}
	return segs
}

func cross(a, b image.Point) int {
	return a.X*b.Y - a.Y*b.X
}

// largestLoop picks the outline with the largest bounding area, preferring
// the longer outline on ties. Holes are always enclosed by their outer
// outline and so never win.
func largestLoop(loops [][]Vec2) []Vec2 {
	best := loops[0]
	bestArea := HitBoxPoints(best).Bounds()
	for _, l := range loops[1:] {
		b := HitBoxPoints(l).Bounds()
		a, ba := b.Width*b.Height, bestArea.Width*bestArea.Height
		if a > ba || (a == ba && len(l) > len(best)) {
			best, bestArea = l, b
		}
	}
	return best
}

// simplifyClosed reduces a closed outline with Douglas-Peucker. A tolerance
// of zero only drops collinear points.
func simplifyClosed(loop []Vec2, tolerance float64) []Vec2 {
	pts := dropCollinear(loop)
	if tolerance <= 0 || len(pts) <= 3 {
		return pts
	}

	far, farDist := 0, -1.0
	for i, p := range pts {
		dx, dy := p.X-pts[0].X, p.Y-pts[0].Y
		if d := dx*dx + dy*dy; d > farDist {
			far, farDist = i, d
		}
	}

	first := douglasPeucker(pts[:far+1], tolerance)
	second := append(append([]Vec2{}, pts[far:]...), pts[0])
	second = douglasPeucker(second, tolerance)

	out := make([]Vec2, 0, len(first)+len(second))
	out = append(out, first[:len(first)-1]...)
	out = append(out, second[:len(second)-1]...)
	return out
}

func dropCollinear(loop []Vec2) []Vec2 {
	n := len(loop)
	if n < 3 {
		return loop
	}
	out := make([]Vec2, 0, n)
	for i := range loop {
		a, b, c := loop[(i+n-1)%n], loop[i], loop[(i+1)%n]
		if (b.X-a.X)*(c.Y-b.Y)-(b.Y-a.Y)*(c.X-b.X) != 0 {
			out = append(out, b)
		}
	}
	return out
}

// douglasPeucker simplifies an open polyline, always keeping both endpoints.
func douglasPeucker(pts []Vec2, tolerance float64) []Vec2 {
	if len(pts) <= 2 {
		return pts
	}
	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true
	dpMark(pts, 0, len(pts)-1, tolerance, keep)

	out := make([]Vec2, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

func dpMark(pts []Vec2, i, j int, tolerance float64, keep []bool) {
	if j <= i+1 {
		return
	}
	idx, maxDist := -1, tolerance
	for k := i + 1; k < j; k++ {
		if d := segmentDistance(pts[k], pts[i], pts[j]); d > maxDist {
			idx, maxDist = k, d
		}
	}
	if idx < 0 {
		return
	}
	keep[idx] = true
	dpMark(pts, i, idx, tolerance, keep)
	dpMark(pts, idx, j, tolerance, keep)
}

// segmentDistance returns the distance from p to the segment a-b.
func segmentDistance(p, a, b Vec2) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
