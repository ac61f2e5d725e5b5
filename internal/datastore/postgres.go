package datastore

import (
	"net"
	"net/url"

	"gorm.io/driver/postgres"

	"github.com/spaceportal/spaceportal/internal/conf"
)

// PostgresStore implements DataStore for PostgreSQL
type PostgresStore struct {
	DataStore
	Settings *conf.Settings
}

func validatePostgresConfig(settings *conf.Settings) error {
	switch {
	case settings.Output.Postgres.Host == "":
		return validationError("postgres host is empty", "output.postgres.host")
	case settings.Output.Postgres.Database == "":
		return validationError("postgres database is empty", "output.postgres.database")
	}
	return nil
}

func postgresDSN(settings *conf.Settings) *url.URL {
	pg := settings.Output.Postgres
	q := url.Values{}
	if pg.SSLMode != "" {
		q.Set("sslmode", pg.SSLMode)
	}
	q.Set("TimeZone", "UTC")
	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pg.Username, pg.Password),
		Host:     net.JoinHostPort(pg.Host, pg.Port),
		Path:     "/" + pg.Database,
		RawQuery: q.Encode(),
	}
}

// Open sets up the PostgreSQL database connection
func (store *PostgresStore) Open() error {
	if err := validatePostgresConfig(store.Settings); err != nil {
		return err
	}

	dsn := postgresDSN(store.Settings)
	info := dsn.Host + dsn.Path
	return store.openWith(postgres.Open(dsn.String()), "PostgreSQL", info, 0)
}
