package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps an environment variable onto a config key
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		// NASA feeds
		{"nasa.apikey", "NASA_API_KEY", nil},
		{"nasa.apikeyfile", "NASA_API_KEY_FILE", nil},
		{"nasa.donkiurl", "SPACEPORTAL_DONKI_URL", validateEnvURL},
		{"nasa.apodurl", "SPACEPORTAL_APOD_URL", validateEnvURL},
		{"nasa.ratelimit", "SPACEPORTAL_RATE_LIMIT", validateEnvNonNegativeFloat},

		// Import policy
		{"import.maxrecords", "SPACEPORTAL_MAX_RECORDS", validateEnvPositiveInt},
		{"import.downloadimages", "SPACEPORTAL_DOWNLOAD_IMAGES", validateEnvBool},

		// Storage
		{"assets.root", "SPACEPORTAL_ASSET_ROOT", nil},
		{"output.sqlite.path", "SPACEPORTAL_SQLITE_PATH", nil},
		{"output.mysql.password", "SPACEPORTAL_MYSQL_PASSWORD", nil},
		{"output.mysql.passwordfile", "SPACEPORTAL_MYSQL_PASSWORD_FILE", nil},
		{"output.postgres.password", "SPACEPORTAL_POSTGRES_PASSWORD", nil},
		{"output.postgres.passwordfile", "SPACEPORTAL_POSTGRES_PASSWORD_FILE", nil},

		// Surfaces
		{"webserver.listen", "SPACEPORTAL_LISTEN", nil},
		{"sentry.dsn", "SENTRY_DSN", validateEnvURL},
		{"debug", "SPACEPORTAL_DEBUG", validateEnvBool},
	}
}

// bindEnvVars binds every variable and validates the ones that are set.
// Remaining keys are reachable as SPACEPORTAL_<SECTION>_<KEY>.
func bindEnvVars() error {
	viper.SetEnvPrefix("SPACEPORTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var problems []string
	for _, b := range getEnvBindings() {
		if err := viper.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if v := os.Getenv(b.EnvVar); v != "" {
			if err := b.Validate(v); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s: %v", b.EnvVar, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("'%s' is not a boolean", value)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("'%s' is not an integer", value)
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than zero, got %d", n)
	}
	return nil
}

func validateEnvNonNegativeFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("'%s' is not a number", value)
	}
	if f < 0 {
		return fmt.Errorf("must not be negative, got %g", f)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("'%s' is not an absolute URL", value)
	}
	return nil
}
