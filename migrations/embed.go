// Package migrations embeds the SQL schema files so the binary can create
// and upgrade its database without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
