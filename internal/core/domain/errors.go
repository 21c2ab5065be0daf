package domain

import "errors"

var (
	ErrUnsupportedRole      = errors.New("unsupported role")
	ErrUnsupportedColumn    = errors.New("unsupported column")
	ErrInvalidOperatorValue = errors.New("invalid operator value")
	ErrInvalidAggregate     = errors.New("invalid aggregate")
	ErrEmptyProjection      = errors.New("empty projection")
	ErrValidationRejected   = errors.New("validation rejected")
	ErrProfileNotReady      = errors.New("schema profile not ready")
	ErrInvalidIntent        = errors.New("invalid query intent")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyPublished     = errors.New("schema profile already published")
	ErrEmptyDataset         = errors.New("table is empty")
	ErrDatasetExists        = errors.New("dataset already registered")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrUnsupportedRole, "unsupported_role"},
	{ErrUnsupportedColumn, "unsupported_column"},
	{ErrInvalidOperatorValue, "invalid_operator_value"},
	{ErrInvalidAggregate, "invalid_aggregate"},
	{ErrEmptyProjection, "empty_projection"},
	{ErrValidationRejected, "validation_rejected"},
	{ErrProfileNotReady, "profile_not_ready"},
	{ErrInvalidIntent, "invalid_intent"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyPublished, "already_published"},
	{ErrEmptyDataset, "empty_dataset"},
	{ErrDatasetExists, "dataset_exists"},
}

// ErrorKind returns the stable kind string for err, or "internal" when err
// does not wrap a known domain error. Returns "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
