package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stokerbuild/stoker/internal/config"
)

func validConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	return &config.Config{
		Source: config.SourceConfig{
			Root:          root,
			GranularityMS: 1000,
		},
		Registry: config.RegistryConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(root, ".stoker", "registry.db"),
		},
		Watch:   config.WatchConfig{IntervalMS: 2000},
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8766},
		Logging: config.LoggingConfig{Level: "info", Format: "console"},
	}
}

func TestApplyOverrides_RootRederivesRegistryPath(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	cfg := validConfig(t, oldRoot)

	if err := applyOverrides(cfg, newRoot, 0, ""); err != nil {
		t.Fatalf("applyOverrides() error = %v", err)
	}

	if cfg.Source.Root != newRoot {
		t.Errorf("Source.Root = %q, want %q", cfg.Source.Root, newRoot)
	}
	want := filepath.Join(newRoot, ".stoker", "registry.db")
	if cfg.Registry.Path != want {
		t.Errorf("Registry.Path = %q, want %q", cfg.Registry.Path, want)
	}
}

func TestApplyOverrides_ExplicitRegistryPathKept(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	custom := filepath.Join(t.TempDir(), "custom.db")

	cfg := validConfig(t, oldRoot)
	cfg.Registry.Path = custom

	if err := applyOverrides(cfg, newRoot, 0, ""); err != nil {
		t.Fatalf("applyOverrides() error = %v", err)
	}

	if cfg.Registry.Path != custom {
		t.Errorf("Registry.Path = %q, want %q", cfg.Registry.Path, custom)
	}
}

func TestApplyOverrides_PortAndExternalURL(t *testing.T) {
	cfg := validConfig(t, t.TempDir())

	if err := applyOverrides(cfg, "", 9001, "https://tunnel.example.com"); err != nil {
		t.Fatalf("applyOverrides() error = %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Server.ExternalURL != "https://tunnel.example.com" {
		t.Errorf("Server.ExternalURL = %q, want tunnel URL", cfg.Server.ExternalURL)
	}
}

func TestApplyOverrides_ZeroValuesLeaveConfigAlone(t *testing.T) {
	root := t.TempDir()
	cfg := validConfig(t, root)

	if err := applyOverrides(cfg, "", 0, ""); err != nil {
		t.Fatalf("applyOverrides() error = %v", err)
	}

	if cfg.Source.Root != root {
		t.Errorf("Source.Root = %q, want %q", cfg.Source.Root, root)
	}
	if cfg.Server.Port != 8766 {
		t.Errorf("Server.Port = %d, want 8766", cfg.Server.Port)
	}
}

func TestApplyOverrides_InvalidPortRejected(t *testing.T) {
	cfg := validConfig(t, t.TempDir())

	if err := applyOverrides(cfg, "", 70000, ""); err == nil {
		t.Fatal("applyOverrides() with out-of-range port should fail validation")
	}
}
