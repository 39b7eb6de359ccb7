/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HTTPPort != 8099 {
		t.Errorf("HTTPPort = %d, want 8099", cfg.HTTPPort)
	}
	if cfg.OutputFormat != FormatMP3 {
		t.Errorf("OutputFormat = %q, want mp3", cfg.OutputFormat)
	}
	if cfg.IdleTimeout != 30*time.Minute {
		t.Errorf("IdleTimeout = %v, want 30m", cfg.IdleTimeout)
	}
	if !cfg.StopBroadcastFirst {
		t.Error("StopBroadcastFirst should default to true")
	}
	if cfg.GroupStreamMode != GroupStreamIndependent {
		t.Errorf("GroupStreamMode = %q, want independent", cfg.GroupStreamMode)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MSXBRIDGE_HTTP_PORT", "9000")
	t.Setenv("MSXBRIDGE_OUTPUT_FORMAT", "aac")
	t.Setenv("MSXBRIDGE_IDLE_TIMEOUT_MINUTES", "5")
	t.Setenv("MSXBRIDGE_STOP_BROADCAST_FIRST", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HTTPPort != 9000 {
		t.Errorf("HTTPPort = %d, want 9000", cfg.HTTPPort)
	}
	if cfg.OutputFormat != FormatAAC {
		t.Errorf("OutputFormat = %q, want aac", cfg.OutputFormat)
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v, want 5m", cfg.IdleTimeout)
	}
	if cfg.StopBroadcastFirst {
		t.Error("StopBroadcastFirst should be false")
	}
}

func TestLoadInvalidFormat(t *testing.T) {
	t.Setenv("MSXBRIDGE_OUTPUT_FORMAT", "ogg")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject unsupported output format")
	}
}

func TestLoadInvalidGroupMode(t *testing.T) {
	t.Setenv("MSXBRIDGE_GROUP_STREAM_MODE", "multicast")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject unsupported group stream mode")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yml")
	data := []byte("http_port: 8200\noutput_format: flac\nma_url: http://ma.local:8095\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("MSXBRIDGE_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HTTPPort != 8200 {
		t.Errorf("HTTPPort = %d, want 8200 from file", cfg.HTTPPort)
	}
	if cfg.OutputFormat != FormatFLAC {
		t.Errorf("OutputFormat = %q, want flac from file", cfg.OutputFormat)
	}
	if cfg.MAURL != "http://ma.local:8095" {
		t.Errorf("MAURL = %q", cfg.MAURL)
	}
}

func TestEnvBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yml")
	if err := os.WriteFile(path, []byte("http_port: 8200\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("MSXBRIDGE_CONFIG_FILE", path)
	t.Setenv("MSXBRIDGE_HTTP_PORT", "8300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HTTPPort != 8300 {
		t.Errorf("HTTPPort = %d, want env override 8300", cfg.HTTPPort)
	}
}
