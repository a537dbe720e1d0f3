package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Discipline != "rm" || cfg.Priorities != "auto" || cfg.MaxParallel != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.DBPath != filepath.Join(".schedcheck", "history.db") {
		t.Errorf("unexpected db path %s", cfg.DBPath)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
discipline: edf
allow_constrained: true
max_parallel: 8
profiler_window: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.loadFile(path, true); err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if cfg.Discipline != "edf" || !cfg.AllowConstrained || cfg.MaxParallel != 8 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ProfilerWindow != 250*time.Millisecond {
		t.Errorf("expected 250ms window, got %s", cfg.ProfilerWindow)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("expected unset fields to keep defaults, got addr %q", cfg.Addr)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := DefaultConfig()
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if err := cfg.loadFile(missing, false); err != nil {
		t.Errorf("expected optional missing file to be ignored, got %v", err)
	}
	if err := cfg.loadFile(missing, true); err == nil {
		t.Error("expected error for required missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_parallel: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := DefaultConfig().loadFile(path, true); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SCHEDCHECK_DB":              "/tmp/h.db",
		"SCHEDCHECK_DISCIPLINE":      "edf",
		"SCHEDCHECK_MAX_ITERATIONS":  "500",
		"SCHEDCHECK_PROFILER_WINDOW": "2s",
		"SCHEDCHECK_PROFILER":        "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.ProfilerBin = "wcetprof"
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.DBPath != "/tmp/h.db" || cfg.Discipline != "edf" || cfg.MaxIterations != 500 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.ProfilerWindow != 2*time.Second {
		t.Errorf("expected 2s window, got %s", cfg.ProfilerWindow)
	}
	if cfg.ProfilerBin != "wcetprof" {
		t.Error("expected empty env value to leave the setting alone")
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "SCHEDCHECK_MAX_PARALLEL" {
			return "many", true
		}
		return "", false
	}
	err := DefaultConfig().applyEnv(lookup)
	if err == nil || !strings.Contains(err.Error(), "MAX_PARALLEL") {
		t.Errorf("expected MAX_PARALLEL error, got %v", err)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("SCHEDCHECK_ADDR=127.0.0.1:9999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SCHEDCHECK_ADDR") })

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("addr: \":7000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath, envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Errorf("expected env to override file, got %q", cfg.Addr)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("max_parallel: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath, filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxParallel != 2 {
		t.Errorf("expected max_parallel 2, got %d", cfg.MaxParallel)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discipline = "llf"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown discipline")
	}

	cfg = DefaultConfig()
	cfg.MaxParallel = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for max_parallel 0")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Discipline = "edf"
	cfg.ProfilerWindow = 3 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := DefaultConfig()
	if err := loaded.loadFile(path, true); err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if loaded.Discipline != "edf" || loaded.ProfilerWindow != 3*time.Second {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}
