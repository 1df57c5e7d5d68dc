package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the Bridge's embedded SQLite connection. One file per process,
// WAL mode for concurrent readers alongside the single dispatcher writer.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and brings its
// schema up to the latest migration.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(path); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(path string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("storage: load migration source: %w", err)
	}
	dbDriver, err := sqlite3.WithInstance(db.conn, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("storage: init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("storage: init migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("storage: migrate %q: %w", path, err)
	}
	return nil
}

// SchemaVersion reports the currently-applied migration version.
func (db *DB) SchemaVersion() (version uint, dirty bool, err error) {
	row := db.conn.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`)
	if err := row.Scan(&version, &dirty); err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
