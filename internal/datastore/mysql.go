package datastore

import (
	"net"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"

	"github.com/spaceportal/spaceportal/internal/conf"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	switch {
	case settings.Output.MySQL.Host == "":
		return validationError("mysql host is empty", "output.mysql.host")
	case settings.Output.MySQL.Database == "":
		return validationError("mysql database is empty", "output.mysql.database")
	}
	return nil
}

// mysqlDSN builds the driver DSN; FormatDSN escapes credentials.
func mysqlDSN(settings *conf.Settings) *mysqldriver.Config {
	cfg := mysqldriver.NewConfig()
	cfg.User = settings.Output.MySQL.Username
	cfg.Passwd = settings.Output.MySQL.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Output.MySQL.Host, settings.Output.MySQL.Port)
	cfg.DBName = settings.Output.MySQL.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	cfg := mysqlDSN(store.Settings)
	info := cfg.Addr + "/" + cfg.DBName
	return store.openWith(mysql.Open(cfg.FormatDSN()), "MySQL", info, 0)
}
