package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netperf.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadConfigFromFlag(t *testing.T) {
	path := writeConfig(t, "transport: udp\nserver:\n  udp_addr: 127.0.0.1:9100\n")

	cfg, err := loadConfig(context.Background(), newFlagSet(), []string{"-config", path})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport != "udp" {
		t.Fatalf("expected transport udp got %q", cfg.Transport)
	}
	if cfg.Server.UDPAddr != "127.0.0.1:9100" {
		t.Fatalf("expected udp addr override got %q", cfg.Server.UDPAddr)
	}
}

func TestTransportFlagOverridesFile(t *testing.T) {
	path := writeConfig(t, "transport: tcp\n")

	cfg, err := loadConfig(context.Background(), newFlagSet(), []string{"-config", path, "-transport", "udp"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport != "udp" {
		t.Fatalf("flag should win over file, got %q", cfg.Transport)
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	t.Setenv("NETPERF_CONFIG", "")
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg, err := loadConfig(context.Background(), newFlagSet(), nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "transport: udp\n")
	t.Setenv("NETPERF_CONFIG", path)

	cfg, err := loadConfig(context.Background(), newFlagSet(), nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport != "udp" {
		t.Fatalf("expected env config transport udp got %q", cfg.Transport)
	}
}

func TestLoadConfigRejectsUnknownFlag(t *testing.T) {
	if _, err := loadConfig(context.Background(), newFlagSet(), []string{"-bogus"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
