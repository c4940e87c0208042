package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeouts.Request.Duration != 120*time.Second {
		t.Errorf("request timeout = %s, want 120s", cfg.Timeouts.Request)
	}
	if cfg.Timeouts.Initialize.Duration != 180*time.Second {
		t.Errorf("initialize timeout = %s, want 180s", cfg.Timeouts.Initialize)
	}
	if cfg.JDTLS.LaunchGrace.Duration != 500*time.Millisecond {
		t.Errorf("launch grace = %s, want 500ms", cfg.JDTLS.LaunchGrace)
	}
	if cfg.Scan.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Scan.Concurrency)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "javalsp.toml")
	content := `
[jdtls]
command = "jdtls -Xmx1g"

[timeouts]
request = "30s"
post_init_grace = "0s"

[scan]
concurrency = 8

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.JDTLS.Command != "jdtls -Xmx1g" {
		t.Errorf("command = %q", cfg.JDTLS.Command)
	}
	if cfg.Timeouts.Request.Duration != 30*time.Second {
		t.Errorf("request = %s, want 30s", cfg.Timeouts.Request)
	}
	if cfg.Timeouts.PostInitGrace.Duration != 0 {
		t.Errorf("post_init_grace = %s, want 0s", cfg.Timeouts.PostInitGrace)
	}
	// Untouched keys keep their defaults.
	if cfg.Timeouts.Initialize.Duration != 180*time.Second {
		t.Errorf("initialize = %s, want 180s", cfg.Timeouts.Initialize)
	}
	if cfg.Scan.Concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", cfg.Scan.Concurrency)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JAVALSP_JDTLS_COMMAND", "/opt/jdtls/bin/jdtls")
	t.Setenv("JAVALSP_REQUEST_TIMEOUT", "2m")
	t.Setenv("JAVALSP_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.JDTLS.Command != "/opt/jdtls/bin/jdtls" {
		t.Errorf("command = %q", cfg.JDTLS.Command)
	}
	if cfg.Timeouts.Request.Duration != 2*time.Minute {
		t.Errorf("request = %s, want 2m", cfg.Timeouts.Request)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
}

func TestEnvOverrideBadDuration(t *testing.T) {
	t.Setenv("JAVALSP_REQUEST_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero request", func(c *Config) { c.Timeouts.Request.Duration = 0 }, "timeouts.request"},
		{"negative grace", func(c *Config) { c.Timeouts.PostInitGrace.Duration = -time.Second }, "timeouts.post_init_grace"},
		{"no concurrency", func(c *Config) { c.Scan.Concurrency = 0 }, "scan.concurrency"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDataDir(t *testing.T) {
	root := t.TempDir()

	a1, err := DataDir(root, "/work/project-a")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := DataDir(root, "/work/project-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := DataDir(root, "/work/project-b")
	if err != nil {
		t.Fatal(err)
	}

	if a1 != a2 {
		t.Errorf("same workspace gave %s and %s", a1, a2)
	}
	if a1 == b {
		t.Errorf("distinct workspaces share %s", a1)
	}
	if filepath.Dir(a1) != filepath.Join(root, "java-lsp-data") {
		t.Errorf("parent = %s, want %s", filepath.Dir(a1), filepath.Join(root, "java-lsp-data"))
	}
}

func TestDataDirInsideWorkspace(t *testing.T) {
	ws := t.TempDir()
	if _, err := DataDir(filepath.Join(ws, "tmp"), ws); err == nil {
		t.Fatal("expected error for data root inside workspace")
	}
}

func TestEnsureDataDir(t *testing.T) {
	root := t.TempDir()
	dir, err := EnsureDataDir(root, "/work/project")
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatalf("%s is not a directory", dir)
	}
}
