package config

import "testing"

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load("testdata/example.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RingSize != 4194304 {
		t.Errorf("RingSize = %d, want 4194304", cfg.RingSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ProgramPageSize != Default().ProgramPageSize {
		t.Errorf("ProgramPageSize = %d, want the default %d unchanged", cfg.ProgramPageSize, Default().ProgramPageSize)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.toml"); err == nil {
		t.Fatal("expected error loading a missing file")
	}
}
