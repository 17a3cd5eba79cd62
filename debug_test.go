package texatlas

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// captureStderr runs fn with os.Stderr redirected and returns what it wrote.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stderr = w
	fn()
	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestDebugMode_RebuildLogged(t *testing.T) {
	a := newTestAtlas(t, smallAtlasConfig())
	a.SetDebugMode(true)
	if _, err := a.Add(patternTexture(t, 1, 8, 8)); err != nil {
		t.Fatal(err)
	}

	output := captureStderr(t, func() {
		if err := a.Rebuild(); err != nil {
			t.Fatal(err)
		}
	})
	if !strings.Contains(output, "[texatlas] rebuild #1") {
		t.Errorf("expected rebuild line in stderr, got: %q", output)
	}
}

func TestDebugMode_GrowLogged(t *testing.T) {
	cfg := smallAtlasConfig()
	cfg.Width, cfg.Height = 16, 16
	cfg.MaxWidth, cfg.MaxHeight = 64, 64
	a := newTestAtlas(t, cfg)
	a.SetDebugMode(true)

	output := captureStderr(t, func() {
		if _, err := a.Add(patternTexture(t, 1, 20, 20)); err != nil {
			t.Fatal(err)
		}
	})
	if !strings.Contains(output, "atlas: grew to") {
		t.Errorf("expected grow line in stderr, got: %q", output)
	}
}

func TestReleaseMode_Silent(t *testing.T) {
	a := newTestAtlas(t, smallAtlasConfig())
	output := captureStderr(t, func() {
		if _, err := a.Add(patternTexture(t, 1, 8, 8)); err != nil {
			t.Fatal(err)
		}
		if err := a.Rebuild(); err != nil {
			t.Fatal(err)
		}
		debugLogLoad("a.png", "x", false)
	})
	if output != "" {
		t.Errorf("release mode should print nothing, got: %q", output)
	}
}

func TestDebugLogLoad(t *testing.T) {
	SetDebugMode(true)
	defer SetDebugMode(false)

	output := captureStderr(t, func() {
		debugLogLoad("hero.png", "abc|0123|simple", true)
	})
	if !strings.Contains(output, "load hero.png -> abc|0123|simple (cached)") {
		t.Errorf("unexpected output: %q", output)
	}
}

func TestDebugLogStats(t *testing.T) {
	output := captureStderr(t, func() {
		debugLogStats(AtlasStats{Pages: 2, Width: 64, Height: 64, Utilization: 0.5, Rebuilds: 3}, 7, 9)
	})
	for _, want := range []string{"pages: 2 (64x64)", "used: 50.0%", "rebuilds: 3", "hit boxes: 7", "textures: 9"} {
		if !strings.Contains(output, want) {
			t.Errorf("stats output missing %q: %q", want, output)
		}
	}
}
