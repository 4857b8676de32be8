package db

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// devMigrationsDir is checked before the embedded copies so schema work can
// be iterated without rebuilding the binary.
const devMigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migration sources, rooted so the *.sql files
// sit at the top of the returned filesystem. Uses the embedded FS in
// production, local files in dev.
func getMigrationsFS() (fs.FS, error) {
	if info, err := os.Stat(devMigrationsDir); err == nil && info.IsDir() {
		return os.DirFS(devMigrationsDir), nil
	}
	return fs.Sub(embeddedMigrations, "migrations")
}
