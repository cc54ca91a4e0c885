// Package migrations creates and upgrades the database schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var files embed.FS

// Migrate brings the schema up to date for the given driver.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	switch driver {
	case "postgres":
		return Up(db)
	case "sqlite":
		return Apply(ctx, db)
	default:
		return fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Up runs the versioned postgres migrations with golang-migrate.
func Up(db *sql.DB) error {
	src, err := iofs.New(files, "sql/postgres")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	defer src.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("open migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Apply executes the embedded sqlite schema one statement at a time. Every
// statement is idempotent.
func Apply(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Statements returns the sqlite schema split into individual statements.
func Statements() []string {
	data, err := files.ReadFile("sql/sqlite/schema.sql")
	if err != nil {
		panic(fmt.Sprintf("embedded sqlite schema missing: %v", err))
	}

	var out []string
	for _, part := range strings.Split(string(data), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
