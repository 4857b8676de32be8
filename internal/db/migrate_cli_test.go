package db

import (
	"path/filepath"
	"testing"
)

// TestRunMigrateCommand_UpAndStatus exercises the happy paths that do not
// call os.Exit.
func TestRunMigrateCommand_UpAndStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	RunMigrateCommand([]string{"up"}, dbPath)
	RunMigrateCommand([]string{"status"}, dbPath)

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB after migrate up failed: %v", err)
	}
	defer db.Close()

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("expected clean version 3 after migrate up, got %d (dirty: %v)", version, dirty)
	}
}

func TestRunMigrateCommand_Version(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	RunMigrateCommand([]string{"version", "1"}, dbPath)

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if tableExists(t, db, "track_records") {
		t.Error("track_records should not exist at version 1")
	}
	if !tableExists(t, db, "sessions") {
		t.Error("sessions should exist at version 1")
	}
}

func TestPrintMigrateHelp(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("PrintMigrateHelp panicked: %v", r)
		}
	}()

	PrintMigrateHelp()
}
