package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"

	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/errors"
)

const sqliteMemory = ":memory:"

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if settings.Output.SQLite.Path == "" {
		return validationError("sqlite path is empty", "output.sqlite.path")
	}
	return nil
}

// Open sets up the SQLite database connection
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	path := store.Settings.Output.SQLite.Path
	dsn := sqliteMemory
	if path != sqliteMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", filepath.ToSlash(path))
	}

	// one writer at a time; this also keeps a :memory: database on a single connection
	return store.openWith(sqlite.Open(dsn), "SQLite", path, 1)
}
