// Package telemetry reports errors to Sentry when the user opts in.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/privacy"
)

const flushTimeout = 2 * time.Second

// Init initializes the Sentry SDK and installs the error reporter. It does
// nothing when Sentry is disabled. The returned function flushes pending
// events.
func Init(settings *conf.Settings, build *buildinfo.Context) (func(), error) {
	if !settings.Sentry.Enabled {
		return func() {}, nil
	}
	if settings.Sentry.DSN == "" {
		return nil, errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Sentry.Environment,
		ServerName:       "", // prevent hostname leakage
		Release:          fmt.Sprintf("spaceportal@%s", build.GetVersion()),
		BeforeSend:       applyPrivacyFilters,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	return func() { sentry.Flush(flushTimeout) }, nil
}

// applyPrivacyFilters strips host identity and scrubs credentials from the
// event before it leaves the process.
func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	for i := range event.Breadcrumbs {
		event.Breadcrumbs[i].Message = privacy.ScrubMessage(event.Breadcrumbs[i].Message)
	}
	return event
}
