//go:build ruleguard

// Package gorules holds go-ruleguard checks run by golangci-lint's gocritic
// ruleguard integration.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// TestingContext detects context.Background() or context.TODO() in tests and
// suggests t.Context(), which is cancelled when the test completes.
//
// See: https://pkg.go.dev/testing#T.Context
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx = context.Background()`,
		`$ctx := context.TODO()`,
		`$ctx = context.TODO()`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a background context")

	m.Match(
		`$fn(context.Background(), $*args)`,
		`$fn(context.TODO(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a background context")
}

// DefaultHTTPClient flags outbound requests that bypass internal/httpclient,
// which applies the User-Agent, timeouts and response hooks.
func DefaultHTTPClient(m dsl.Matcher) {
	m.Match(
		`http.Get($*_)`,
		`http.Post($*_)`,
		`http.DefaultClient.Do($*_)`,
	).
		Where(!m.File().Name.Matches(`_test\.go$`) && !m.File().PkgPath.Matches(`/internal/httpclient$`)).
		Report("use internal/httpclient instead of the net/http default client")
}

// StdErrorsNew flags stdlib errors.New outside internal/errors. Sentinels use
// errors.NewStd; everything else goes through the categorized builder.
func StdErrorsNew(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m["msg"].Type.Is("string") && !m.File().PkgPath.Matches(`/internal/errors$`)).
		Report("use errors.NewStd or errors.Newf(...).Build() from internal/errors")
}

// CredentialLogField flags log fields that carry a credential by name. Keys
// are masked with privacy.Redact before they reach a log record.
func CredentialLogField(m dsl.Matcher) {
	m.Match(
		`logger.String("api_key", $_)`,
		`logger.String("apikey", $_)`,
		`logger.String("password", $_)`,
		`logger.String("dsn", $_)`,
	).
		Report("do not log credentials; redact them or drop the field")
}

// JoinHostPort detects fmt.Sprintf patterns for host:port and suggests
// net.JoinHostPort, which brackets IPv6 literals.
func JoinHostPort(m dsl.Matcher) {
	m.Match(
		`fmt.Sprintf("%s:%s", $host, $port)`,
		`fmt.Sprintf("%s:%d", $host, $port)`,
	).
		Where(m["host"].Text.Matches(`(?i)host`)).
		Report("use net.JoinHostPort($host, $port) for network addresses")
}
