package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chazu/garnet/pkg/bytecode"
)

// ErrUnitNotFound is returned when the store has no unit of a name.
var ErrUnitNotFound = errors.New("unit not found")

const schema = `CREATE TABLE IF NOT EXISTS units (
	name   TEXT PRIMARY KEY,
	id     TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	file   TEXT NOT NULL,
	data   BLOB NOT NULL
)`

// SQLiteStore keeps encoded units in a SQLite database, one row per unit
// name. Storing a unit again replaces it.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Sink stores a generated unit. Its signature matches the compiler's
// output callback.
func (s *SQLiteStore) Sink(filename string, unit *bytecode.ClassBuilder) error {
	data, err := unit.Bytes()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", unit.Name(), err)
	}
	u := unit.Unit()
	_, err = s.db.Exec(
		`INSERT INTO units (name, id, source, file, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET id = excluded.id, source = excluded.source,
		 file = excluded.file, data = excluded.data`,
		u.Name, u.ID, u.Source, filename, data)
	if err != nil {
		return fmt.Errorf("storing %s: %w", u.Name, err)
	}
	log.Debugf("stored %s in %s (%d bytes)", u.Name, s.path, len(data))
	return nil
}

// Get loads the unit called name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*bytecode.Unit, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM units WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrUnitNotFound)
	}
	if err != nil {
		return nil, err
	}
	return bytecode.Unmarshal(data)
}

// Units loads every stored unit, ordered by name.
func (s *SQLiteStore) Units(ctx context.Context) ([]*bytecode.Unit, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, data FROM units ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []*bytecode.Unit
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return nil, err
		}
		u, err := bytecode.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// Delete removes the unit called name.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM units WHERE name = ?", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", name, ErrUnitNotFound)
	}
	return nil
}
