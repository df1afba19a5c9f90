package config

import (
	"testing"
)

func TestSetupDefaults(t *testing.T) {
	cfg, logger := Setup()
	if logger == nil {
		t.Fatal("Setup() returned nil logger")
	}
	if cfg.Renderer != "pdfium" {
		t.Errorf("default renderer = %q, want pdfium", cfg.Renderer)
	}
	if cfg.DPI != 300 {
		t.Errorf("default DPI = %d, want 300", cfg.DPI)
	}
	if cfg.Quality != 92 {
		t.Errorf("default quality = %d, want 92", cfg.Quality)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestSetupFromEnv(t *testing.T) {
	t.Setenv("PDFR_RENDERER", "fitz")
	t.Setenv("PDFR_DPI", "150")
	t.Setenv("PDFR_QUALITY", "not-a-number")

	cfg, _ := Setup()
	if cfg.Renderer != "fitz" {
		t.Errorf("renderer = %q, want fitz", cfg.Renderer)
	}
	if cfg.DPI != 150 {
		t.Errorf("DPI = %d, want 150", cfg.DPI)
	}
	// Unparseable values fall back to the default.
	if cfg.Quality != 92 {
		t.Errorf("quality = %d, want default 92", cfg.Quality)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad renderer", mutate: func(c *Config) { c.Renderer = "ghostscript" }, wantErr: true},
		{name: "zero dpi", mutate: func(c *Config) { c.DPI = 0 }, wantErr: true},
		{name: "quality too high", mutate: func(c *Config) { c.Quality = 101 }, wantErr: true},
		{name: "quality zero", mutate: func(c *Config) { c.Quality = 0 }, wantErr: true},
		{name: "negative max dim", mutate: func(c *Config) { c.MaxDimension = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Renderer:      "pdfium",
				MaxDimension:  16384,
				DPI:           300,
				Quality:       92,
				Format:        "jpeg",
				WatchInterval: 10,
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
