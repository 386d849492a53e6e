package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen_MigratesAllTables(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	for _, table := range []string{"matches", "teams", "tournaments", "channels", "news", "users", "sessions", "auth_tokens", "user_preferences", "newsletter_subscribers"} {
		var name string
		err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	first.Close()
	second, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	second.Close()
}

func TestScoreCheckConstraint(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "check.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	_, err = sqlDB.Exec(`INSERT INTO matches (id, tournament, home_team, away_team, score_home) VALUES ('m','t','h','a', 1)`)
	if err == nil {
		t.Fatal("expected check constraint failure for half score")
	}
}

func TestGorm_SharesConnection(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "gorm.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	g, err := Gorm(sqlDB)
	if err != nil {
		t.Fatalf("gorm: %v", err)
	}
	var n int64
	if err := g.Table("matches").Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("count = %d err = %v", n, err)
	}
}

func TestMigrate_ReportsVersion(t *testing.T) {
	sqlDB, err := Open(filepath.Join(t.TempDir(), "version.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	ctx := context.Background()
	n, err := Migrate(ctx, sqlDB)
	if err != nil || n != 0 {
		t.Fatalf("second migrate ran %d migrations, err = %v", n, err)
	}
	v, err := Version(ctx, sqlDB)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 3 {
		t.Fatalf("version = %d, want 3", v)
	}
}
