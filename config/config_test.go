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

	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.Threshold != 0.5 {
		t.Errorf("expected Threshold=0.5, got %f", cfg.Retrieve.Threshold)
	}
	if cfg.Retrieve.PreviewChars != 500 {
		t.Errorf("expected PreviewChars=500, got %d", cfg.Retrieve.PreviewChars)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("expected Provider=hash, got %s", cfg.Embedding.Provider)
	}
	if cfg.Store.Backend != "bolt" {
		t.Errorf("expected Backend=bolt, got %s", cfg.Store.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "smartindex.yaml")

	content := `
index:
  workers: 8
  clusters: 3
retrieve:
  top_k: 10
  threshold: 0.2
embedding:
  timeout: 5s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Index.Workers != 8 {
		t.Errorf("expected Workers=8, got %d", cfg.Index.Workers)
	}
	if cfg.Index.Clusters != 3 {
		t.Errorf("expected Clusters=3, got %d", cfg.Index.Clusters)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected TopK=10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.Threshold != 0.2 {
		t.Errorf("expected Threshold=0.2, got %f", cfg.Retrieve.Threshold)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("expected Timeout=5s, got %v", cfg.Embedding.Timeout)
	}
	// untouched sections keep their defaults
	if cfg.Retrieve.PreviewChars != 500 {
		t.Errorf("expected PreviewChars=500, got %d", cfg.Retrieve.PreviewChars)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "smartindex.yaml")
	if err := os.WriteFile(configPath, []byte("retrieve: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "smartindex.yaml")

	content := `
retrieve:
  top_k: 9
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieve.TopK != 9 {
		t.Errorf("expected TopK=9, got %d", cfg.Retrieve.TopK)
	}
}

func TestLoadFromDir_HiddenConfig(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	content := `
store:
  backend: memory
`
	if err := os.WriteFile(filepath.Join(tmpDir, DirName, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected Backend=memory, got %s", cfg.Store.Backend)
	}
}

func TestLoadFromDir_Defaults(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected default TopK=5, got %d", cfg.Retrieve.TopK)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "smartindex.yaml")

	cfg := DefaultConfig()
	cfg.Retrieve.TopK = 42
	cfg.Embedding.CacheTTL = 90 * time.Second

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Retrieve.TopK != 42 {
		t.Errorf("expected TopK=42, got %d", loaded.Retrieve.TopK)
	}
	if loaded.Embedding.CacheTTL != 90*time.Second {
		t.Errorf("expected CacheTTL=90s, got %v", loaded.Embedding.CacheTTL)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retrieve.TopK = 0
	cfg.Retrieve.Threshold = 2
	cfg.Embedding.Provider = "magic"
	cfg.Store.Backend = "sqlite"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"retrieve.top_k", "retrieve.threshold", "embedding.provider", "store.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestIndexDBPath(t *testing.T) {
	path := IndexDBPath("/project")
	expected := filepath.Join("/project", ".smartindex", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := EnsureDir(tmpDir); err != nil {
		t.Fatalf("failed to ensure dir: %v", err)
	}

	info, err := os.Stat(filepath.Join(tmpDir, DirName))
	if err != nil {
		t.Fatalf("dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
}

func TestResolveUploadDir(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ResolveUploadDir("/corpus"); got != filepath.Join("/corpus", "uploads") {
		t.Errorf("unexpected upload dir %s", got)
	}
	cfg.Server.UploadDir = "/var/uploads"
	if got := cfg.ResolveUploadDir("/corpus"); got != "/var/uploads" {
		t.Errorf("unexpected upload dir %s", got)
	}
}

func TestOCRActive(t *testing.T) {
	tests := []struct {
		name      string
		cfg       OCRConfig
		available bool
		want      bool
	}{
		{"auto with engine", OCRConfig{Auto: true}, true, true},
		{"auto without engine", OCRConfig{Auto: true}, false, false},
		{"forced without engine", OCRConfig{Enabled: true}, false, true},
		{"off", OCRConfig{}, true, false},
	}
	for _, tt := range tests {
		if got := tt.cfg.Active(tt.available); got != tt.want {
			t.Errorf("%s: Active(%v) = %v, want %v", tt.name, tt.available, got, tt.want)
		}
	}

	if !DefaultConfig().OCR.Auto {
		t.Error("expected OCR auto-detection on by default")
	}
}
