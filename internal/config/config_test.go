package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("WIKISCROLL_ENDPOINT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.ThinThreshold != 5 {
		t.Errorf("ThinThreshold = %d, want 5", cfg.Feed.ThinThreshold)
	}
	if cfg.RetryDelay() != 500*time.Millisecond || cfg.ThinDelay() != time.Second {
		t.Errorf("delays = %v / %v", cfg.RetryDelay(), cfg.ThinDelay())
	}
	if cfg.Wiki.Endpoint != "https://en.wikipedia.org/w/api.php" {
		t.Errorf("Endpoint = %q", cfg.Wiki.Endpoint)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"feed":{"thin_threshold":8},"wiki":{"page_size":500}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.ThinThreshold != 8 {
		t.Errorf("ThinThreshold = %d, want 8", cfg.Feed.ThinThreshold)
	}
	if cfg.Feed.ThinDelayMs != 1000 {
		t.Errorf("ThinDelayMs = %d, want default 1000", cfg.Feed.ThinDelayMs)
	}
	if cfg.Wiki.PageSize != 10 {
		t.Errorf("out-of-range page size should fall back to 10, got %d", cfg.Wiki.PageSize)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected an error for malformed config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WIKISCROLL_ENDPOINT", "http://localhost:9999/api.php")
	t.Setenv("WIKISCROLL_DB", "/tmp/x.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wiki.Endpoint != "http://localhost:9999/api.php" || cfg.Wiki.FeedEndpoint != cfg.Wiki.Endpoint {
		t.Errorf("endpoint override not applied: %+v", cfg.Wiki)
	}
	if cfg.DBPath() != "/tmp/x.db" {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.UI.ImagesOnly = true
	cfg.Wiki.RequestsPerSecond = 5

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.UI.ImagesOnly || loaded.Wiki.RequestsPerSecond != 5 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestDataDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WIKISCROLL_HOME", dir)
	if ConfigPath() != filepath.Join(dir, "config.json") {
		t.Errorf("ConfigPath() = %q", ConfigPath())
	}
	t.Setenv("WIKISCROLL_DB", "")
	if DefaultConfig().DBPath() != filepath.Join(dir, "wikiscroll.db") {
		t.Errorf("DBPath() = %q", DefaultConfig().DBPath())
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	if err := Watch(ctx, path, func(c *Config) { changes <- c }, nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Wiki.RequestsPerSecond = 9
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-changes:
			if got.Wiki.RequestsPerSecond == 9 {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
