package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SearchPageSize != 30 {
		t.Errorf("SearchPageSize = %d, want 30", cfg.SearchPageSize)
	}
	if cfg.ListPageSize != 100 {
		t.Errorf("ListPageSize = %d, want 100", cfg.ListPageSize)
	}
	if cfg.LinkBatchSize != 50 {
		t.Errorf("LinkBatchSize = %d, want 50", cfg.LinkBatchSize)
	}
	if cfg.MonitorInterval != 5*time.Minute {
		t.Errorf("MonitorInterval = %v, want 5m", cfg.MonitorInterval)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DROVER_SEARCH_DELAY", "9s")
	t.Setenv("DROVER_SEARCH_PAGE_SIZE", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SearchDelay != 9*time.Second {
		t.Errorf("SearchDelay = %v, want 9s", cfg.SearchDelay)
	}
	if cfg.SearchPageSize != 12 {
		t.Errorf("SearchPageSize = %d, want 12", cfg.SearchPageSize)
	}
}

func TestInvalidValuesRejected(t *testing.T) {
	t.Setenv("DROVER_SEARCH_PAGE_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero page size")
	}
}
