package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// chdir switches the working directory for the test, restoring it on cleanup.
// Equivalent to t.Chdir, which needs Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no valuegraph.toml in scope

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.SnapshotPath != "valuegraph.json" {
		t.Errorf("snapshot = %q", cfg.SnapshotPath)
	}
	if cfg.SaveQuietSec != 2 || cfg.SaveMaxSec != 30 {
		t.Errorf("save cadence = %d/%d", cfg.SaveQuietSec, cfg.SaveMaxSec)
	}
	if cfg.LayoutWidth != 1280 || cfg.LayoutHeight != 800 {
		t.Errorf("layout viewport = %vx%v", cfg.LayoutWidth, cfg.LayoutHeight)
	}
	if cfg.Watch || cfg.JSONLogs {
		t.Error("watch and json_logs must default to off")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	body := "port = 9000\nsnapshot = \"/data/graph.json\"\nlayout_seed = 7\n"
	if err := os.WriteFile(filepath.Join(dir, "valuegraph.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Port)
	}
	if cfg.SnapshotPath != "/data/graph.json" {
		t.Errorf("snapshot = %q", cfg.SnapshotPath)
	}
	if cfg.LayoutSeed != 7 {
		t.Errorf("layout_seed = %d", cfg.LayoutSeed)
	}
	// Values the file does not set keep their defaults.
	if cfg.SaveMaxSec != 30 {
		t.Errorf("save_max_sec = %d", cfg.SaveMaxSec)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "valuegraph.toml"), []byte("port = 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	t.Setenv("VALUEGRAPH_PORT", "9100")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("port = %d, want 9100 from env", cfg.Port)
	}
}

func TestFlagsOverrideEverything(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("VALUEGRAPH_PORT", "9100")

	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Int("port", 8080, "")
	f.Bool("watch", false, "")
	if err := f.Parse([]string{"--port=9200", "--watch"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9200 {
		t.Errorf("port = %d, want 9200 from flags", cfg.Port)
	}
	if !cfg.Watch {
		t.Error("watch flag not applied")
	}
}
