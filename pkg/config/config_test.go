package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSessionIDComposition(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.SessionID(), "m1_201204_s2_c1"; got != want {
		t.Errorf("SessionID() = %q, want %q", got, want)
	}

	// Single-digit months and days are zero-padded.
	cfg.Session.Month = 3
	cfg.Session.Day = 7
	cfg.Session.SliceNumber = 10
	if got, want := cfg.SessionID(), "m1_200307_s10_c1"; got != want {
		t.Errorf("SessionID() = %q, want %q", got, want)
	}
}

func TestDefaultConfigIsValidExceptInputs(t *testing.T) {
	cfg := DefaultConfig()

	// Input paths are the one thing the defaults cannot supply.
	if err := cfg.Validate(); err == nil {
		t.Error("expected default config to fail validation without input paths")
	}

	cfg.Input.Bottom = "bot.mat"
	cfg.Input.Middle = "mid.mat"
	cfg.Input.Top = "top.mat"
	if err := cfg.Validate(); err != nil {
		t.Errorf("config with input paths failed validation: %v", err)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Input.Bottom = "bot.mat"
		cfg.Input.Middle = "mid.mat"
		cfg.Input.Top = "top.mat"
		return cfg
	}

	cfg := base()
	cfg.Imaging.ImagingRate = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero imaging rate")
	}

	cfg = base()
	cfg.Session.Month = 13
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid month")
	}

	cfg = base()
	cfg.Imaging.RedIndicator = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing indicator")
	}
}

func TestDefaultSessionNotes(t *testing.T) {
	cfg := DefaultConfig()
	notes := cfg.Session.Notes
	if notes == "" {
		t.Fatal("default session notes must not be empty")
	}
	// The recording log mentions each dendrite region's sweep frames.
	for _, fragment := range []string{
		"201204 - Slice 2",
		"1-8 Bottom Den",
		"10-19 Middle Den",
		"22-28 Top Dendrite",
		"started to bleb.",
	} {
		if !strings.Contains(notes, fragment) {
			t.Errorf("session notes missing %q", fragment)
		}
	}
}

func TestAge(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.Age(), "P100D"; got != want {
		t.Errorf("Age() = %q, want %q", got, want)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Animal.ID != "m1" {
		t.Errorf("expected default animal ID, got %q", cfg.Animal.ID)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	yaml := `
animal:
  id: m7
session:
  year: 2021
  month: 1
  day: 15
input:
  bottom: data/bot.mat
  middle: data/mid.mat
  top: data/top.mat
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Animal.ID != "m7" {
		t.Errorf("animal ID not overridden: %q", cfg.Animal.ID)
	}
	if got, want := cfg.SessionID(), "m7_210115_s2_c1"; got != want {
		t.Errorf("SessionID() = %q, want %q", got, want)
	}
	// Untouched sections keep their defaults.
	if cfg.Imaging.LineRate != 1000.0 {
		t.Errorf("line rate default lost: %v", cfg.Imaging.LineRate)
	}
	if cfg.Input.Middle != "data/mid.mat" {
		t.Errorf("input path not loaded: %q", cfg.Input.Middle)
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "session.yaml")

	cfg := DefaultConfig()
	cfg.Animal.ID = "m3"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Animal.ID != "m3" {
		t.Errorf("round-trip lost animal ID: %q", loaded.Animal.ID)
	}
}
