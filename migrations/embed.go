// Package migrations embeds the bridge's SQL schema migrations.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-mpd/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
