package ingest

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/antonholmquist/jason"
	"golang.org/x/text/unicode/norm"

	"github.com/spaceportal/spaceportal/internal/errors"
)

var errNotArray = errors.NewStd("expected a JSON array")

// optString decodes any JSON scalar into its text form. Objects, arrays and
// null decode as absent, so one malformed field never fails the record.
// Strings are stored in NFC so re-imports compare equal byte for byte.
type optString struct {
	value string
	set   bool
}

func (o *optString) UnmarshalJSON(b []byte) error {
	*o = optString{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*o = optString{value: norm.NFC.String(s), set: true}
		}
	case 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*o = optString{value: string(b), set: true}
	}
	return nil
}

// String returns the trimmed value, empty when absent.
func (o optString) String() string {
	return strings.TrimSpace(o.value)
}

// Present reports whether the field holds a non-blank value.
func (o optString) Present() bool {
	return o.set && o.String() != ""
}

// Ptr returns the trimmed value or nil when absent.
func (o optString) Ptr() *string {
	if !o.Present() {
		return nil
	}
	s := o.String()
	return &s
}

// record is one raw element of a feed payload. Raw is nil when the element
// is not a JSON object.
type record struct {
	Raw []byte
}

// splitArray parses a payload that must be a JSON array. A blank body is an
// empty array.
func splitArray(body []byte) ([]record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	v, err := jason.NewValueFromBytes(body)
	if err != nil {
		return nil, err
	}
	items, err := v.Array()
	if err != nil {
		return nil, errNotArray
	}
	return toRecords(items), nil
}

// splitObjectOrArray parses a payload holding one JSON object or an array
// of them, as the imagery feed returns for single days and ranges.
func splitObjectOrArray(body []byte) ([]record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	v, err := jason.NewValueFromBytes(body)
	if err != nil {
		return nil, err
	}
	if items, err := v.Array(); err == nil {
		return toRecords(items), nil
	}
	if _, err := v.Object(); err != nil {
		return nil, errors.NewStd("expected a JSON object or array")
	}
	return toRecords([]*jason.Value{v}), nil
}

func toRecords(items []*jason.Value) []record {
	out := make([]record, 0, len(items))
	for _, item := range items {
		if _, err := item.Object(); err != nil {
			out = append(out, record{})
			continue
		}
		raw, err := item.Marshal()
		if err != nil {
			out = append(out, record{})
			continue
		}
		out = append(out, record{Raw: raw})
	}
	return out
}
