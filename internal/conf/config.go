// Package conf loads SpacePortal settings from config.yaml, environment
// variables and command line flags through viper.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/spaceportal/spaceportal/internal/logger"
	"github.com/spaceportal/spaceportal/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options
type Settings struct {
	Debug bool // true to enable debug output

	Nasa struct {
		APIKey     string        // NASA open API key, api.nasa.gov; may hold ${VAR}
		APIKeyFile string        // file holding the key, wins over APIKey
		UserAgent  string        // identifying header sent to every feed
		Timeout    time.Duration // per request timeout
		RateLimit  float64       // requests per second, 0 disables client side throttling
		Burst      int           // token bucket burst
		DonkiURL   string        // DONKI base URL, must end with /
		ApodURL    string        // base URL hosting planetary/apod, must end with /
	}

	Import struct {
		MaxRecords        int  // records accepted from one upstream response
		FlareLookbackDays int  // default flare window length in days
		FlareEventTypeID  uint // event type assigned to imported flares
		Thumbs            bool // request video thumbnails from APOD
		DownloadImages    bool // cache image media locally
	}

	Assets struct {
		Root       string        // directory served as the static asset root
		DefaultExt string        // extension used when the source URL has none
		MaxBytes   int64         // largest accepted asset
		FailureTTL time.Duration // how long a failed asset URL is not retried
	}

	Output struct {
		SQLite struct {
			Enabled bool   // true to store into sqlite
			Path    string // path to sqlite database
		}

		MySQL struct {
			Enabled      bool
			Username     string
			Password     string
			PasswordFile string
			Database     string
			Host         string
			Port         string
		}

		Postgres struct {
			Enabled      bool
			Username     string
			Password     string
			PasswordFile string
			Database     string
			Host         string
			Port         string
			SSLMode      string
		}
	}

	WebServer struct {
		Enabled bool   // true to serve the import API
		Listen  string // listen address, e.g. :8080
	}

	Telemetry struct {
		Enabled bool   // true to expose Prometheus metrics
		Listen  string // metrics listen address
	}

	Sentry struct {
		Enabled     bool
		DSN         string
		Environment string
	}

	Logging logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configFile, or config.yaml from the default search paths when
// configFile is empty, applies environment overrides and validates the
// result. A missing config.yaml is not an error; defaults apply.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings, secrets.NewResolver(nil, logger.Global().Module("config"))); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		viper.AddConfigPath(p)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "spaceportal"))
	}
	paths = append(paths, "/etc/spaceportal")
	return paths, nil
}

// GetSettings returns the settings from the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DefaultConfig returns the embedded annotated config.yaml.
func DefaultConfig() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// WriteDefaultConfig writes the embedded config.yaml to path, refusing to
// overwrite an existing file.
func WriteDefaultConfig(path string) error {
	data, err := DefaultConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("error writing config file: %w", err)
	}
	return f.Close()
}

// SaveYAMLConfig writes settings to configPath through a temporary file and
// rename. Comments in an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tmpName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// resolveSecrets replaces credential settings with their resolved values.
// Only enabled database backends are resolved so that an unset variable in
// an unused section does not fail startup.
func resolveSecrets(settings *Settings, r *secrets.Resolver) error {
	var err error
	if settings.Nasa.APIKey, err = r.Resolve(settings.Nasa.APIKeyFile, settings.Nasa.APIKey); err != nil {
		return fmt.Errorf("nasa.apikey: %w", err)
	}
	if settings.Output.MySQL.Enabled {
		my := &settings.Output.MySQL
		if my.Password, err = r.Resolve(my.PasswordFile, my.Password); err != nil {
			return fmt.Errorf("output.mysql.password: %w", err)
		}
	}
	if settings.Output.Postgres.Enabled {
		pg := &settings.Output.Postgres
		if pg.Password, err = r.Resolve(pg.PasswordFile, pg.Password); err != nil {
			return fmt.Errorf("output.postgres.password: %w", err)
		}
	}
	if settings.Sentry.Enabled {
		if settings.Sentry.DSN, err = secrets.ExpandString(settings.Sentry.DSN); err != nil {
			return fmt.Errorf("sentry.dsn: %w", err)
		}
	}
	return nil
}
