package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError collects every problem found in Settings
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. A missing NASA API
// key is not a validation error; imports report it per request.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateNasaSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateImportSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateAssetSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateOutputSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.WebServer.Enabled && settings.WebServer.Listen == "" {
		ve.Errors = append(ve.Errors, "webserver.listen is required when the web server is enabled")
	}
	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		ve.Errors = append(ve.Errors, "telemetry.listen is required when telemetry is enabled")
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateNasaSettings(s *Settings) error {
	var problems []string
	for key, raw := range map[string]string{"nasa.donkiurl": s.Nasa.DonkiURL, "nasa.apodurl": s.Nasa.ApodURL} {
		u, err := url.Parse(raw)
		switch {
		case err != nil || u.Host == "":
			problems = append(problems, fmt.Sprintf("%s must be an absolute URL", key))
		case u.Scheme != "http" && u.Scheme != "https":
			problems = append(problems, fmt.Sprintf("%s must use http or https", key))
		case !strings.HasSuffix(u.Path, "/"):
			problems = append(problems, fmt.Sprintf("%s must end with /", key))
		}
	}
	if s.Nasa.Timeout <= 0 {
		problems = append(problems, "nasa.timeout must be positive")
	}
	if s.Nasa.RateLimit < 0 {
		problems = append(problems, "nasa.ratelimit must not be negative")
	}
	if s.Nasa.RateLimit > 0 && s.Nasa.Burst < 1 {
		problems = append(problems, "nasa.burst must be at least 1 when rate limiting")
	}
	return joinProblems(problems)
}

func validateImportSettings(s *Settings) error {
	var problems []string
	if s.Import.MaxRecords <= 0 {
		problems = append(problems, "import.maxrecords must be greater than zero")
	}
	if s.Import.FlareLookbackDays <= 0 {
		problems = append(problems, "import.flarelookbackdays must be greater than zero")
	}
	if s.Import.FlareEventTypeID == 0 {
		problems = append(problems, "import.flareeventtypeid must be set")
	}
	return joinProblems(problems)
}

func validateAssetSettings(s *Settings) error {
	if !s.Import.DownloadImages {
		return nil
	}
	var problems []string
	if s.Assets.Root == "" {
		problems = append(problems, "assets.root is required when downloadimages is enabled")
	}
	if !strings.HasPrefix(s.Assets.DefaultExt, ".") {
		problems = append(problems, "assets.defaultext must start with a dot")
	}
	if s.Assets.MaxBytes <= 0 {
		problems = append(problems, "assets.maxbytes must be positive")
	}
	return joinProblems(problems)
}

func validateOutputSettings(s *Settings) error {
	enabled := 0
	for _, on := range []bool{s.Output.SQLite.Enabled, s.Output.MySQL.Enabled, s.Output.Postgres.Enabled} {
		if on {
			enabled++
		}
	}
	switch {
	case enabled == 0:
		return fmt.Errorf("one of output.sqlite, output.mysql or output.postgres must be enabled")
	case enabled > 1:
		return fmt.Errorf("only one database output may be enabled")
	case s.Output.SQLite.Enabled && s.Output.SQLite.Path == "":
		return fmt.Errorf("output.sqlite.path is required")
	case s.Output.MySQL.Enabled && (s.Output.MySQL.Host == "" || s.Output.MySQL.Database == ""):
		return fmt.Errorf("output.mysql host and database are required")
	case s.Output.Postgres.Enabled && (s.Output.Postgres.Host == "" || s.Output.Postgres.Database == ""):
		return fmt.Errorf("output.postgres host and database are required")
	}
	return nil
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}
