package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got %v", err)
	}
	if cfg.MPR.WindowLevelPreset != "Abdomen" {
		t.Errorf("Expected Abdomen preset, got %s", cfg.MPR.WindowLevelPreset)
	}
	if cfg.MPR.OriginPolicy != "unbounded" {
		t.Errorf("Expected unbounded origin policy, got %s", cfg.MPR.OriginPolicy)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("Expected default addr, got %s", cfg.Server.Addr)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg := DefaultConfig()
	cfg.Rotations.Backend = BackendS3
	cfg.Rotations.Bucket = "cardio-rotations"
	cfg.Cine.BPM = 72
	cfg.Volumes = append(cfg.Volumes, VolumeConfig{Label: "CCTA", Directory: "/data/ccta", Pattern: "${frame}.mhd", Visible: true})
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Rotations.Bucket != "cardio-rotations" || loaded.Cine.BPM != 72 {
		t.Errorf("Round trip lost values: %+v", loaded.Rotations)
	}
	if len(loaded.Volumes) != 1 || loaded.Volumes[0].Pattern != "${frame}.mhd" {
		t.Errorf("Expected one volume with its pattern, got %+v", loaded.Volumes)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Expected loaded config to validate, got %v", err)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("cine:\n  bpm: 90\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cine.BPM != 90 {
		t.Errorf("Expected bpm 90, got %g", cfg.Cine.BPM)
	}
	if cfg.Rotations.Root != "rotations" {
		t.Errorf("Expected default rotations root, got %q", cfg.Rotations.Root)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected parse error, got nil")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":    func(c *Config) { c.Rotations.Backend = "ftp" },
		"bucket":     func(c *Config) { c.Rotations.Backend = BackendS3 },
		"root":       func(c *Config) { c.Rotations.Root = "" },
		"policy":     func(c *Config) { c.MPR.OriginPolicy = "wrap" },
		"preset":     func(c *Config) { c.MPR.WindowLevelPreset = "Heart" },
		"convention": func(c *Config) { c.MPR.IndexOrder = "xyz" },
		"units":      func(c *Config) { c.MPR.AngleUnits = "turns" },
		"bpm":        func(c *Config) { c.Cine.BPM = 0 },
		"log level":  func(c *Config) { c.Logging.Level = "trace" },
		"label": func(c *Config) {
			c.Volumes = []VolumeConfig{{Label: "bad label", Directory: "/d"}}
		},
		"duplicate": func(c *Config) {
			c.Volumes = []VolumeConfig{{Label: "A", Directory: "/a"}, {Label: "A", Directory: "/b"}}
		},
		"directory": func(c *Config) {
			c.Volumes = []VolumeConfig{{Label: "A"}}
		},
		"pattern": func(c *Config) {
			c.Volumes = []VolumeConfig{{Label: "A", Directory: "/a", Pattern: "frame.mhd"}}
		},
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error, got nil", name)
		}
	}
}

func TestBuilderAppliesOnlySetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	file := DefaultConfig()
	file.Server.Addr = ":9000"
	file.Cine.BPM = 80
	file.Volumes = []VolumeConfig{{Label: "FromFile", Directory: "/file"}}
	if err := SaveConfig(file, path); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("cardio", flag.ContinueOnError)
	b := NewBuilder(fs)
	err := fs.Parse([]string{
		"-config", path,
		"-bpm", "100",
		"-origin-policy", "clamp",
		"-volume", "CCTA=/data/ccta:${frame}.mhd",
		"-volume", "Pre=/data/pre",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if b.ConfigPath() != path {
		t.Errorf("Expected config path %s, got %s", path, b.ConfigPath())
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Expected addr from the file, got %s", cfg.Server.Addr)
	}
	if cfg.Cine.BPM != 100 {
		t.Errorf("Expected bpm from the flag, got %g", cfg.Cine.BPM)
	}
	if cfg.MPR.OriginPolicy != "clamp" {
		t.Errorf("Expected clamp, got %s", cfg.MPR.OriginPolicy)
	}
	if len(cfg.Volumes) != 2 {
		t.Fatalf("Expected flag volumes to replace the file's, got %+v", cfg.Volumes)
	}
	if v := cfg.Volumes[0]; v.Label != "CCTA" || v.Directory != "/data/ccta" || v.Pattern != "${frame}.mhd" || !v.Visible {
		t.Errorf("Unexpected first volume %+v", v)
	}
	if v := cfg.Volumes[1]; v.Directory != "/data/pre" || v.Pattern != "" {
		t.Errorf("Unexpected second volume %+v", v)
	}
}

func TestBuilderErrors(t *testing.T) {
	fs := flag.NewFlagSet("cardio", flag.ContinueOnError)
	b := NewBuilder(fs)
	if _, err := b.Build(); err == nil {
		t.Error("Expected error before parsing")
	}

	if err := fs.Parse([]string{"-config", filepath.Join(t.TempDir(), "none.yaml"), "-store", "s3"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(); err == nil {
		t.Error("Expected s3 without a bucket to fail validation")
	}

	var v volumeFlags
	if err := v.Set("no-equals"); err == nil {
		t.Error("Expected malformed volume flag to fail")
	}
	if err := v.Set(`C=C:\data`); err != nil || v[0].Directory != `C:\data` || v[0].Pattern != "" {
		t.Errorf("Expected drive letter to stay in the directory, got %+v (%v)", v, err)
	}
}
