package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// migration upgrades the schema by one version. Base tables come from
// schema.sql, which is idempotent; migrations evolve databases created by
// older releases.
type migration struct {
	version int
	name    string
	apply   func(*sql.Tx) error
}

var migrations = []migration{
	{1, "workflows", func(*sql.Tx) error { return nil }},
	{2, "workflow_step_count", addColumn("workflows", "step_count", "INTEGER NOT NULL DEFAULT 0")},
	{3, "workflow_updated_index", execSQL(`CREATE INDEX IF NOT EXISTS idx_workflows_updated ON workflows(updated_at)`)},
}

// Applied is one row of the migration history.
type Applied struct {
	Version   int
	Name      string
	AppliedAt string
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func applyOne(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := m.apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

func schemaVersion(q interface {
	QueryRow(string, ...any) *sql.Row
}) (int, error) {
	var v int
	if err := q.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// SchemaVersion is the highest applied migration.
func (s *Store) SchemaVersion() (int, error) {
	return schemaVersion(s.db)
}

// Migrations lists applied migrations in version order.
func (s *Store) Migrations() ([]Applied, error) {
	rows, err := s.db.Query(`SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Version, &a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func execSQL(stmt string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec(stmt)
		return err
	}
}

// addColumn adds column to table unless a previous release already did.
func addColumn(table, column, decl string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		cols, err := columns(tx, table)
		if err != nil {
			return err
		}
		if cols[column] {
			return nil
		}
		_, err = tx.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
		return err
	}
}

func columns(tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}
