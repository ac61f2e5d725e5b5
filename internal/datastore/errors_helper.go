package datastore

import (
	"github.com/spaceportal/spaceportal/internal/errors"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.NewStd("record not found")

// dbError creates a categorized database error with context pairs
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder.Build()
}

func validationError(message, field string) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Build()
}

func notFoundError(entity, key string) error {
	return errors.New(ErrNotFound).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("entity", entity).
		Context("key", key).
		Build()
}
