package db

import (
	"strings"
	"testing"
)

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return exists
}

func columnExists(t *testing.T, db *DB, table, column string) bool {
	t.Helper()

	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?
	`, table, column).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check column %s.%s: %v", table, column, err)
	}
	return exists
}

func TestMigrateUp(t *testing.T) {
	db := setupBareDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 3 {
		t.Errorf("expected version 3, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after successful migration")
	}

	for _, table := range []string{"sessions", "reading_events", "track_records"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s should exist after migration", table)
		}
	}
	for _, col := range []string{"box_x", "box_y", "box_w", "box_h"} {
		if !columnExists(t, db, "reading_events", col) {
			t.Errorf("column reading_events.%s should exist after migration", col)
		}
	}
}

func TestMigrateUp_Idempotency(t *testing.T) {
	db := setupBareDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("first MigrateUp failed: %v", err)
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	version, _, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 3 {
		t.Errorf("expected version 3 after idempotent up, got %d", version)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupBareDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2 after down migration, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after successful down migration")
	}

	if columnExists(t, db, "reading_events", "box_x") {
		t.Error("box_x should not exist after rolling back version 3")
	}
	if !tableExists(t, db, "track_records") {
		t.Error("track_records should still exist at version 2")
	}
}

func TestMigrateVersion_FreshDB(t *testing.T) {
	db := setupBareDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion on fresh DB failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on fresh DB, got %d", version)
	}
	if dirty {
		t.Error("fresh DB should not be dirty")
	}
}

func TestMigrateTo(t *testing.T) {
	db := setupBareDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := db.MigrateTo(migrationsFS, 1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}

	if tableExists(t, db, "track_records") {
		t.Error("track_records should not exist at version 1")
	}
	if !tableExists(t, db, "sessions") {
		t.Error("sessions should exist at version 1")
	}
}

func TestGetLatestMigrationVersion(t *testing.T) {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest != 3 {
		t.Errorf("expected latest version 3, got %d", latest)
	}
}

func TestBaselineAtVersion(t *testing.T) {
	db := setupBareDB(t)

	if err := db.BaselineAtVersion(3); err != nil {
		t.Fatalf("BaselineAtVersion failed: %v", err)
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 3 {
		t.Errorf("expected baselined version 3, got %d", version)
	}
	if dirty {
		t.Error("baselined database should not be dirty")
	}

	// A second baseline must refuse to clobber the recorded version.
	if err := db.BaselineAtVersion(1); err == nil {
		t.Error("expected error when baselining an already-baselined database")
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db := setupTestDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	status, err := db.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}

	if got := status["current_version"]; got != uint(3) {
		t.Errorf("expected current_version 3, got %v", got)
	}
	if got := status["dirty"]; got != false {
		t.Errorf("expected dirty false, got %v", got)
	}
	if got := status["schema_migrations_exists"]; got != true {
		t.Errorf("expected schema_migrations_exists true, got %v", got)
	}
}

func TestCheckAndPromptMigrations(t *testing.T) {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	t.Run("out of date database", func(t *testing.T) {
		db := setupBareDB(t)

		needsAction, err := db.CheckAndPromptMigrations(migrationsFS)
		if !needsAction {
			t.Error("expected needsAction for unmigrated database")
		}
		if err == nil {
			t.Fatal("expected error for unmigrated database")
		}
		if !strings.Contains(err.Error(), "out of date") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("up to date database", func(t *testing.T) {
		db := setupTestDB(t)

		needsAction, err := db.CheckAndPromptMigrations(migrationsFS)
		if needsAction {
			t.Error("did not expect needsAction for migrated database")
		}
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
