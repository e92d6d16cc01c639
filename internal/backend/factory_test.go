package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"recargas/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("nil config accepted")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("unknown backend accepted")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "postgres", DatabaseURL: "postgres://x"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != PostgresBackend || cfg.DatabaseURL != "postgres://x" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
		if err != nil {
			t.Fatal(err)
		}
		if err := res.Store.Ping(ctx); err != nil {
			t.Error(err)
		}
		if err := res.Cleanup(); err != nil {
			t.Error(err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "r.db")
		res, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
		if err != nil {
			t.Fatal(err)
		}
		defer res.Cleanup()
		if err := res.Store.Ping(ctx); err != nil {
			t.Error(err)
		}
	})

	t.Run("missing settings", func(t *testing.T) {
		_, err := f.CreateBackend(ctx, Config{Type: PostgresBackend})
		if err == nil || !strings.Contains(err.Error(), "database URL is required") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := strings.Join(GetBackendTypeStrings(), ",")
	if got != "sqlite,postgres,memory" {
		t.Errorf("types = %s", got)
	}
}
