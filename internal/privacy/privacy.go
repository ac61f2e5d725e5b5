// Package privacy removes credentials from text that may leave the process:
// error messages, upstream response bodies, log lines and telemetry.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// MaskToken replaces every redacted secret.
const MaskToken = "***"

var (
	urlPattern = regexp.MustCompile(`\bhttps?://[^\s"'<>]+`)

	credentialParams = []string{"api_key", "apikey", "access_token", "token", "key"}
)

// Redact replaces every literal occurrence of secret in text, and of its
// query-escaped form, with MaskToken. An empty secret leaves text unchanged.
func Redact(text, secret string) string {
	if secret == "" || text == "" {
		return text
	}
	text = strings.ReplaceAll(text, secret, MaskToken)
	if escaped := url.QueryEscape(secret); escaped != secret {
		text = strings.ReplaceAll(text, escaped, MaskToken)
	}
	if escaped := url.PathEscape(secret); escaped != secret {
		text = strings.ReplaceAll(text, escaped, MaskToken)
	}
	return text
}

// MaskQueryParam returns rawURL with the value of param replaced by
// MaskToken. Unparseable input is returned unchanged.
func MaskQueryParam(rawURL, param string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	q := u.Query()
	if !q.Has(param) {
		return rawURL
	}
	for i := range q[param] {
		q[param][i] = MaskToken
	}
	u.RawQuery = q.Encode()
	// keep the mask readable instead of percent-encoded
	return strings.ReplaceAll(u.String(), url.QueryEscape(MaskToken), MaskToken)
}

// ScrubMessage masks credential query parameters in every URL found in
// message. It does not need to know the secret.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, func(raw string) string {
		for _, p := range credentialParams {
			raw = MaskQueryParam(raw, p)
		}
		return raw
	})
}
