package privacy

// SanitizedError carries a redacted message while keeping the original error
// chain available to errors.Is and errors.As.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

func (e *SanitizedError) Error() string {
	return e.sanitizedMsg
}

func (e *SanitizedError) Unwrap() error {
	return e.original
}

// RedactError wraps err so its message has secret redacted and credential
// query parameters masked. Returns nil for a nil err.
func RedactError(err error, secret string) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{
		original:     err,
		sanitizedMsg: ScrubMessage(Redact(err.Error(), secret)),
	}
}
