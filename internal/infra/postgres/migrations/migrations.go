package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema steps; each step registers itself from its own file.
var Migrations = migrate.NewMigrations()
