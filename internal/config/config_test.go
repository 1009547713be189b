package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Defaults() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverlaysFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	body := "radius = 5.0\nknnlib = \"kdtree\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Radius != 5.0 {
		t.Errorf("expected radius overlaid to 5.0, got %v", cfg.Radius)
	}
	if cfg.KNNLib != "kdtree" {
		t.Errorf("expected knnlib overlaid to kdtree, got %v", cfg.KNNLib)
	}
	if cfg.IndexLength != DefaultIndexLength {
		t.Errorf("expected unset field to keep default, got %v", cfg.IndexLength)
	}
}

func TestApplyFlagsOverridesFileAndDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.overlay(Config{Radius: 5.0})

	flags := Config{Radius: 9.0}
	cfg.ApplyFlags(flags, func(field string) bool { return field == "radius" })

	if cfg.Radius != 9.0 {
		t.Errorf("expected flag to win over file value, got %v", cfg.Radius)
	}
}
