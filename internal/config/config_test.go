package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/crabwatch/internal/capture"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Source() != capture.Device(0) {
		t.Errorf("Source() = %v, want device 0", cfg.Source())
	}
	if cfg.DisplaySlots != 3 {
		t.Errorf("DisplaySlots = %d, want 3", cfg.DisplaySlots)
	}
	if cfg.Recording.Codec != "XVID" || cfg.Recording.FPS != 20 || cfg.Recording.Extension != ".avi" {
		t.Errorf("Recording = %+v, want XVID/20/.avi", cfg.Recording)
	}
	if cfg.PluginDir != "plugins" || cfg.PluginTimeout != 5*time.Second {
		t.Errorf("plugins = %s, %v", cfg.PluginDir, cfg.PluginTimeout)
	}
	if cfg.ImageDir != "captured_images" || cfg.VideoDir != "recorded_videos" {
		t.Errorf("dirs = %s, %s", cfg.ImageDir, cfg.VideoDir)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crabwatch.yaml")
	data := `
camera: videos/tank.mp4
prefix: tank
display_slots: 1
frozen_interval: 50ms
recording:
  fps: 15
detector:
  hue_min: 30
  min_area: 800
log:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Source() != capture.File("videos/tank.mp4") {
		t.Errorf("Source() = %v", cfg.Source())
	}
	if cfg.Prefix != "tank" || cfg.DisplaySlots != 1 {
		t.Errorf("Prefix/DisplaySlots = %s/%d", cfg.Prefix, cfg.DisplaySlots)
	}
	if cfg.FrozenInterval != 50*time.Millisecond {
		t.Errorf("FrozenInterval = %v, want 50ms", cfg.FrozenInterval)
	}
	if cfg.Recording.FPS != 15 || cfg.Recording.Codec != "XVID" {
		t.Errorf("Recording = %+v, want fps 15 and default codec", cfg.Recording)
	}
	if cfg.Detector.HueMin != 30 || cfg.Detector.HueMax != 95 || cfg.Detector.MinArea != 800 {
		t.Errorf("Detector = %+v, want overrides merged over defaults", cfg.Detector)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Addr != Default().Addr {
		t.Errorf("Addr = %s, want default", cfg.Addr)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "camera: [", "parse config"},
		{"bad slots", "display_slots: 0", "display_slots"},
		{"bad format", "delivery_format: GRAY", "delivery_format"},
		{"bad codec", "recording:\n  codec: H264X", "codec"},
		{"bad detector", "detector:\n  hue_max: 300", "detector"},
		{"bad log", "log:\n  format: xml", "log format"},
		{"bad plugin timeout", "plugin_timeout: -1s", "plugin_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
