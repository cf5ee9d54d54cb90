package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// MigrationManager applies plain-SQL schema migrations in version order.
// Files are named NNN_name.up.sql / NNN_name.down.sql; the applied version
// is tracked in a schema_migrations table.
//
// Engines never perform DDL. The process entry point runs Up() exactly once
// before any engine is constructed, so every engine can assume its tables
// exist.
type MigrationManager struct {
	db  *sql.DB
	dir string
}

// migrationPair is one up/down file pair sharing a version number.
type migrationPair struct {
	version  uint
	name     string
	upFile   string
	downFile string
}

// NewMigrationManager creates a manager for the given database and
// migrations directory, creating the tracking table if needed.
func NewMigrationManager(db *sql.DB, dir string) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations: cannot access directory %s: %w", dir, err)
	}

	mgr := &MigrationManager{db: db, dir: dir}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to create tracking table: %w", err)
	}
	return mgr, nil
}

// Up applies all pending migrations in ascending version order.
// Idempotent: running it against an up-to-date schema is a no-op.
func (mgr *MigrationManager) Up() error {
	pairs, err := mgr.loadPairs()
	if err != nil {
		return err
	}

	current, err := mgr.Version()
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return err
	}

	for _, p := range pairs {
		if p.version <= current {
			continue
		}
		stmt, err := os.ReadFile(p.upFile)
		if err != nil {
			return fmt.Errorf("migrations: failed to read %s: %w", p.upFile, err)
		}
		if _, err := mgr.db.Exec(string(stmt)); err != nil {
			return fmt.Errorf("migrations: failed to apply version %d (%s): %w", p.version, p.name, err)
		}
		if _, err := mgr.db.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", p.version); err != nil {
			return fmt.Errorf("migrations: failed to record version %d: %w", p.version, err)
		}
	}
	return nil
}

// Down rolls back every applied migration in descending version order.
func (mgr *MigrationManager) Down() error {
	pairs, err := mgr.loadPairs()
	if err != nil {
		return err
	}

	current, err := mgr.Version()
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return err
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].version > pairs[j].version })
	for _, p := range pairs {
		if p.version > current || p.downFile == "" {
			continue
		}
		stmt, err := os.ReadFile(p.downFile)
		if err != nil {
			return fmt.Errorf("migrations: failed to read %s: %w", p.downFile, err)
		}
		if _, err := mgr.db.Exec(string(stmt)); err != nil {
			return fmt.Errorf("migrations: failed to roll back version %d (%s): %w", p.version, p.name, err)
		}
		if _, err := mgr.db.Exec("DELETE FROM schema_migrations WHERE version = $1", p.version); err != nil {
			return fmt.Errorf("migrations: failed to remove version %d: %w", p.version, err)
		}
	}
	return nil
}

// Version returns the highest applied migration version, or ErrNoMigration
// when the schema has never been migrated.
func (mgr *MigrationManager) Version() (uint, error) {
	var version uint
	err := mgr.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}
	if version == 0 {
		return 0, ErrNoMigration
	}
	return version, nil
}

// loadPairs reads and pairs migration files from the directory, sorted by
// version ascending. Files without a numeric NNN_ prefix are skipped.
func (mgr *MigrationManager) loadPairs() ([]migrationPair, error) {
	entries, err := os.ReadDir(mgr.dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to read directory: %w", err)
	}

	byVersion := make(map[uint]*migrationPair)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		idx := strings.Index(name, "_")
		if idx < 0 {
			continue
		}
		v, err := strconv.ParseUint(name[:idx], 10, 32)
		if err != nil {
			continue
		}
		version := uint(v)
		p := byVersion[version]
		if p == nil {
			p = &migrationPair{version: version}
			byVersion[version] = p
		}
		rest := name[idx+1:]
		full := filepath.Join(mgr.dir, name)
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			p.name = strings.TrimSuffix(rest, ".up.sql")
			p.upFile = full
		case strings.HasSuffix(rest, ".down.sql"):
			p.downFile = full
		}
	}

	pairs := make([]migrationPair, 0, len(byVersion))
	for _, p := range byVersion {
		if p.upFile == "" {
			continue
		}
		pairs = append(pairs, *p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].version < pairs[j].version })
	return pairs, nil
}
