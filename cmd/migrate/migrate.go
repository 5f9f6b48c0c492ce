// Package migrate applies the embedded schema migrations. The API binary
// runs it on startup, so a fresh database needs no separate migration step.
package migrate

import (
	"database/sql"
	"embed"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// Run brings the schema up to the latest embedded migration.
func Run(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "open migration connection")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return errors.Wrap(err, "ping database")
	}

	goose.SetBaseFS(migrations)
	return errors.Wrap(goose.Up(db, "migrations"), "apply migrations")
}
