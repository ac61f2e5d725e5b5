package conf

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultDonkiURL   = "https://api.nasa.gov/DONKI/"
	DefaultApodURL    = "https://api.nasa.gov/"
	DefaultMaxRecords = 1000
)

// setDefaultConfig registers the default value of every key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("nasa.apikey", "")
	viper.SetDefault("nasa.apikeyfile", "")
	viper.SetDefault("nasa.useragent", "SpacePortal/1.0 (+https://localhost)")
	viper.SetDefault("nasa.timeout", 30*time.Second)
	// api.nasa.gov allows 1000 requests per hour per key
	viper.SetDefault("nasa.ratelimit", 0.25)
	viper.SetDefault("nasa.burst", 5)
	viper.SetDefault("nasa.donkiurl", DefaultDonkiURL)
	viper.SetDefault("nasa.apodurl", DefaultApodURL)

	viper.SetDefault("import.maxrecords", DefaultMaxRecords)
	viper.SetDefault("import.flarelookbackdays", 365)
	viper.SetDefault("import.flareeventtypeid", 5)
	viper.SetDefault("import.thumbs", true)
	viper.SetDefault("import.downloadimages", true)

	viper.SetDefault("assets.root", "wwwroot")
	viper.SetDefault("assets.defaultext", ".jpg")
	viper.SetDefault("assets.maxbytes", 50<<20)
	viper.SetDefault("assets.failurettl", 15*time.Minute)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "spaceportal.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "spaceportal")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.passwordfile", "")
	viper.SetDefault("output.mysql.database", "spaceportal")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("output.postgres.enabled", false)
	viper.SetDefault("output.postgres.username", "spaceportal")
	viper.SetDefault("output.postgres.password", "")
	viper.SetDefault("output.postgres.passwordfile", "")
	viper.SetDefault("output.postgres.database", "spaceportal")
	viper.SetDefault("output.postgres.host", "localhost")
	viper.SetDefault("output.postgres.port", "5432")
	viper.SetDefault("output.postgres.sslmode", "disable")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "localhost:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "UTC")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/spaceportal.log")
	viper.SetDefault("logging.file_output.level", "info")
}
