package nasa

import (
	"fmt"
	"unicode/utf8"

	"github.com/spaceportal/spaceportal/internal/privacy"
)

// UpstreamError describes a failed feed request. URL and Body never contain
// the API key.
type UpstreamError struct {
	Feed       Feed
	StatusCode int // 0 when no response was received
	URL        string
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode >= 200 && e.StatusCode < 300 {
		return fmt.Sprintf("%s feed returned malformed payload: %v", e.Feed, e.Err)
	}
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s feed unavailable: %v", e.Feed, e.Err)
		}
		return fmt.Sprintf("%s feed unavailable", e.Feed)
	}
	return fmt.Sprintf("%s feed returned status %d", e.Feed, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Malformed returns an UpstreamError for a 2xx response whose body could not
// be used. Its StatusCode stays the upstream 2xx status.
func Malformed(resp *Response, feed Feed, cause error) *UpstreamError {
	ue := &UpstreamError{Feed: feed, Err: cause}
	if resp != nil {
		ue.StatusCode = resp.StatusCode
		ue.URL = resp.URL
		ue.Body = errorBody(resp.Body, resp.redact)
	}
	return ue
}

// errorBody redacts body and then bounds it to maxErrorBodyBytes, cutting on
// a rune boundary. Redaction runs first so a key straddling the limit cannot
// survive as a prefix.
func errorBody(body []byte, redact func(string) string) string {
	text := privacy.ScrubMessage(string(body))
	if redact != nil {
		text = redact(text)
	}
	if len(text) <= maxErrorBodyBytes {
		return text
	}
	n := maxErrorBodyBytes
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
