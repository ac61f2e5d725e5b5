package logger

import (
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// SensitiveDataPatterns match credentials that must never reach log output
var SensitiveDataPatterns = []*regexp.Regexp{
	// bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-._~+/]+=*)`),
	// credentials carried as query parameters, e.g. api_key=... in feed URLs
	regexp.MustCompile(`(?i)([?&](?:api_key|apikey|access_token|token|key)=)([^&\s"']+)`),
	// key: value and key=value assignments
	regexp.MustCompile(`(?i)((?:api|access|auth|token|secret|passw(?:or)?d)[0-9a-z\-_.]*[\s:=]+)([^;,\s&"']{5,})`),
	// DSN passwords, user:password@tcp(host)
	regexp.MustCompile(`([a-zA-Z0-9_]+:)([^@/\s]+)(@(?:tcp|unix)\()`),
}

// RedactSensitiveData replaces credentials found in input with [REDACTED].
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	// most messages contain none of the trigger characters
	if !strings.ContainsAny(input, "=:") && !strings.Contains(strings.ToLower(input), "bearer") {
		return input
	}
	for i, pattern := range SensitiveDataPatterns {
		if i == len(SensitiveDataPatterns)-1 {
			input = pattern.ReplaceAllString(input, "${1}"+redactedValue+"${3}")
			continue
		}
		input = pattern.ReplaceAllString(input, "${1}"+redactedValue)
	}
	return input
}
