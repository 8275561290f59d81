package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFlags(t *testing.T) {
	args := []string{"-i", "list.json", "-c", "3", "-o", "./output", "--engine", "chromedp", "-isc", "404, 500", "-cf"}

	c, err := parseFlags(args)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	if c.Config.Input != "list.json" {
		t.Errorf("Expected Input to be 'list.json', got %s", c.Config.Input)
	}
	if c.Config.MaxParallel != 3 {
		t.Errorf("Expected MaxParallel to be 3, got %d", c.Config.MaxParallel)
	}
	if c.Config.OutDir != "./output" {
		t.Errorf("Expected OutDir to be './output', got %s", c.Config.OutDir)
	}
	if c.Config.Capture.Engine != "chromedp" {
		t.Errorf("Expected Engine to be 'chromedp', got %s", c.Config.Capture.Engine)
	}
	if !c.Config.Capture.CaptureFull {
		t.Errorf("Expected CaptureFull to be set")
	}
	codes := c.Config.Capture.IgnoreStatusCodes
	if len(codes) != 2 || codes[0] != 404 || codes[1] != 500 {
		t.Errorf("Expected IgnoreStatusCodes [404 500], got %v", codes)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	c, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if c.Config.Input != "sites.json" || c.Config.MaxParallel != 6 || c.Config.OutDir != "dist" {
		t.Errorf("Unexpected defaults %+v", c.Config)
	}
}

func TestParseFlagsConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitesnap.toml")
	content := "outdir = \"from-file\"\nmax_parallel = 2\n\n[capture]\nwidth = 1024\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITESNAP_PARALLEL", "4")

	c, err := parseFlags([]string{"--config", path, "-cw", "640"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	if c.Config.OutDir != "from-file" {
		t.Errorf("Config file value lost, OutDir = %s", c.Config.OutDir)
	}
	if c.Config.MaxParallel != 4 {
		t.Errorf("Environment should override file, MaxParallel = %d", c.Config.MaxParallel)
	}
	if c.Config.Capture.CaptureWidth != 640 {
		t.Errorf("Flag should override file, CaptureWidth = %d", c.Config.Capture.CaptureWidth)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"-isc", "abc"},
		{"--no-such-flag"},
		{"--config", filepath.Join(t.TempDir(), "missing.toml")},
	} {
		if _, err := parseFlags(args); err == nil {
			t.Errorf("parseFlags(%v) expected error", args)
		}
	}
}

func TestParseFlagsHelp(t *testing.T) {
	c, err := parseFlags([]string{"-h"})
	if err != nil || !c.Help {
		t.Errorf("Expected help, got %+v (%v)", c, err)
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--config", "a.toml"}, "a.toml"},
		{[]string{"-config=b.yaml", "-c", "2"}, "b.yaml"},
		{[]string{"-c", "2"}, ""},
		{[]string{"--", "--config", "x"}, ""},
		{[]string{"--config"}, ""},
	}
	for _, tc := range tests {
		if got := configPath(tc.args); got != tc.want {
			t.Errorf("configPath(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}
