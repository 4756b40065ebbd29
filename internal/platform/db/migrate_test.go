package db

import (
	"testing"
	"testing/fstest"

	"github.com/DejaVu2364/MedflowAG-sub001/migrations"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	src := fstest.MapFS{
		"010_tables.sql":   {Data: []byte("SELECT 10;")},
		"002_second.sql":   {Data: []byte("SELECT 2;")},
		"001_first.sql":    {Data: []byte("SELECT 1;")},
		"README.md":        {Data: []byte("docs")},
		"abc_invalid.sql":  {Data: []byte("SELECT 0;")},
		"nounderscore.sql": {Data: []byte("SELECT 0;")},
	}

	got, err := NewMigrator(nil, src).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(got))
	}
	wantVersions := []int{1, 2, 10}
	for i, v := range wantVersions {
		if got[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, got[i].Version)
		}
	}
	if got[0].SQL != "SELECT 1;" || got[0].Name != "001_first.sql" {
		t.Errorf("unexpected first migration %+v", got[0])
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	src := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, src).LoadMigrations(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	got, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for i := 1; i < len(got); i++ {
		if got[i].Version <= got[i-1].Version {
			t.Errorf("migrations out of order: %d after %d", got[i].Version, got[i-1].Version)
		}
	}
}
