package texatlas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.HitBoxAlgorithm().Name() != "simple" {
		t.Errorf("default algorithm = %q, want simple", cfg.HitBoxAlgorithm().Name())
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	data := []byte(`
atlas:
  width: 256
  max_pages: 3
hitbox:
  algorithm: detailed
  detail: 8
  cache_file: hitboxes.json.gz
  save_indent: 2
hot_reload: true
hot_reload_debounce: 250ms
debug: true
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Atlas.Width != 256 || cfg.Atlas.MaxPages != 3 {
		t.Errorf("Atlas = %+v", cfg.Atlas)
	}
	if cfg.Atlas.Height != 512 || cfg.Atlas.Padding != 1 {
		t.Errorf("omitted atlas keys should keep defaults: %+v", cfg.Atlas)
	}
	if got := cfg.HitBoxAlgorithm().CacheName(); got != "detailed|8" {
		t.Errorf("algorithm = %q, want detailed|8", got)
	}
	if cfg.HitBox.CacheFile != "hitboxes.json.gz" || cfg.HitBox.SaveIndent != 2 {
		t.Errorf("HitBox = %+v", cfg.HitBox)
	}
	if !cfg.HotReload || cfg.HotReloadDebounce != 250*time.Millisecond || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantField string
	}{
		{"bad yaml", "atlas: [", ""},
		{"bad algorithm", "hitbox:\n  algorithm: pixel\n", "HitBox.Algorithm"},
		{"bad detail", "hitbox:\n  detail: -1\n", "HitBox.Detail"},
		{"bad indent", "hitbox:\n  save_indent: -2\n", "HitBox.SaveIndent"},
		{"bad atlas", "atlas:\n  padding: -1\n", "Atlas.Padding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("ParseConfig should fail")
			}
			if tt.wantField == "" {
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tt.wantField)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texatlas.yaml")
	if err := os.WriteFile(path, []byte("atlas:\n  padding: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Atlas.Padding != 0 {
		t.Errorf("Padding = %d, want 0", cfg.Atlas.Padding)
	}

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "Atlas.Padding", Reason: "must be non-negative"}
	want := "texatlas: invalid config.Atlas.Padding: must be non-negative"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
