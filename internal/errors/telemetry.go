package errors

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives enhanced errors when telemetry is enabled
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// PrivacyScrubber removes secrets from text before it leaves the process
type PrivacyScrubber func(string) string

var (
	telemetryMu       sync.RWMutex
	telemetryReporter TelemetryReporter
	privacyScrubber   PrivacyScrubber
)

// SetTelemetryReporter installs the global reporter. Passing nil disables
// reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// SetPrivacyScrubber installs the function used to scrub reported messages.
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()
	privacyScrubber = scrubber
}

func reportToTelemetry(ee *EnhancedError) {
	telemetryMu.RLock()
	reporter := telemetryReporter
	telemetryMu.RUnlock()
	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

var queryStringPattern = regexp.MustCompile(`(https?://[^?\s"]+)\?[^\s"]*`)

func scrubMessage(message string) string {
	telemetryMu.RLock()
	scrubber := privacyScrubber
	telemetryMu.RUnlock()
	if scrubber != nil {
		message = scrubber(message)
	}
	// query strings never leave the process, whatever the scrubber did
	return queryStringPattern.ReplaceAllString(message, "$1?[REDACTED]")
}

// SentryReporter reports enhanced errors to Sentry
type SentryReporter struct {
	enabled bool
}

func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends ee to Sentry once. Validation and cancellation errors
// are caller mistakes, not faults, and are not reported.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}
	if ee.Category == CategoryValidation || ee.Category == CategoryCancellation {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := fmt.Sprintf("%s %s", ee.Component, ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = levelFor(ee.Category)
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryUpstream, CategoryImageFetch, CategoryTimeout:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}
