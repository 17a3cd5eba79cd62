package texatlas

import (
	"errors"
	"math"
	"testing"

	"github.com/jakecoffman/cp"
)

func TestHitBoxVectors(t *testing.T) {
	pts := HitBoxPoints{{-1, -2}, {3, -2}, {3, 4}}
	vs := pts.Vectors()
	if len(vs) != 3 {
		t.Fatalf("len = %d, want 3", len(vs))
	}
	if vs[2] != (cp.Vector{X: 3, Y: 4}) {
		t.Errorf("vs[2] = %v, want {3 4}", vs[2])
	}
}

func TestHitBoxArea(t *testing.T) {
	if a := HitBoxArea(boxPoints(4, 6)); math.Abs(a-24) > 1e-9 {
		t.Errorf("area = %v, want 24", a)
	}
	if a := HitBoxArea(HitBoxPoints{}); a != 0 {
		t.Errorf("empty area = %v, want 0", a)
	}
}

func TestNewHitBoxBodyAndShape(t *testing.T) {
	tex, err := NewTexture(NewImageData(solidImage(10, 20, opaqueRed)), BoundingHitBox{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	body, err := NewHitBoxBody(2, tex.HitBoxPoints())
	if err != nil {
		t.Fatal(err)
	}
	want := cp.MomentForBox(2, 10, 20)
	if got := body.Moment(); math.Abs(got-want) > 1e-6 {
		t.Errorf("moment = %v, want %v (box)", got, want)
	}

	shape, err := NewTextureShape(body, tex, 0)
	if err != nil {
		t.Fatal(err)
	}
	space := cp.NewSpace()
	space.AddBody(body)
	space.AddShape(shape)
	bb := shape.BB()
	if math.Abs(bb.R-bb.L-10) > 1e-6 || math.Abs(bb.T-bb.B-20) > 1e-6 {
		t.Errorf("shape bounds = %+v, want 10x20", bb)
	}
}

func TestNewHitBoxShapeEmpty(t *testing.T) {
	body := cp.NewBody(1, 1)
	if _, err := NewHitBoxShape(body, HitBoxPoints{}, 0); !errors.Is(err, ErrEmptyHitBox) {
		t.Errorf("shape err = %v, want ErrEmptyHitBox", err)
	}
	if _, err := NewHitBoxBody(1, nil); !errors.Is(err, ErrEmptyHitBox) {
		t.Errorf("body err = %v, want ErrEmptyHitBox", err)
	}
}
