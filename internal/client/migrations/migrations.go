// Package migrations embeds the client schema for every supported dialect.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/formsync/internal/dbx"
	"github.com/pressly/goose/v3"
)

// Migrations holds goose SQL files under sqlite/ and postgres/.
//
//go:embed sqlite/*.sql postgres/*.sql
var Migrations embed.FS

var gooseMu sync.Mutex

// Up applies every pending migration for the dialect. goose keeps its base
// FS and dialect in package state, so calls are serialized.
func Up(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, dialectDir(dialect))
}

func dialectDir(d dbx.Dialect) string {
	if d == dbx.DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}
