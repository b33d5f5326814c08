package archive

import "fmt"

// SerializationError wraps a record that could not be encoded to the output
// format. It is never swallowed: the caller logs it and skips that record.
type SerializationError struct {
	RecordID string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize record %s: %v", e.RecordID, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// SchemaViolationError reports a record missing a structural field that the
// frozen schema contract requires, or carrying the wrong schema version.
type SchemaViolationError struct {
	RecordType string
	RecordID   string
	Field      string
	Detail     string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation in %s record %s: field %s %s", e.RecordType, e.RecordID, e.Field, e.Detail)
}
