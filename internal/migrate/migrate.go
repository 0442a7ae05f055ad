// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/cigarclub/identity/migrations"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Up opens dsn with the driver's database/sql adapter and runs all pending migrations.
func Up(ctx context.Context, driver, dsn string) error {
	sqlDriver, err := sqlDriverName(driver)
	if err != nil {
		return err
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = UpDB(ctx, db, driver)
	return err
}

// UpDB runs pending migrations on an already open database and returns the
// number of migrations applied.
func UpDB(ctx context.Context, db *sql.DB, driver string) (int, error) {
	dialect, dir, err := dialectFor(driver)
	if err != nil {
		return 0, err
	}
	fsys, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	res, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate %s: %w", driver, err)
	}
	return len(res), nil
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverPostgres:
		return "pgx", nil
	case DriverSQLite:
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported store driver %q", driver)
}

func dialectFor(driver string) (goose.Dialect, string, error) {
	switch driver {
	case DriverPostgres:
		return goose.DialectPostgres, "postgres", nil
	case DriverSQLite:
		return goose.DialectSQLite3, "sqlite", nil
	}
	return "", "", fmt.Errorf("unsupported store driver %q", driver)
}
