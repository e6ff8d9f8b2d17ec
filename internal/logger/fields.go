package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID).
	FieldRequestID = "request_id"

	// FieldRunKind is the pipeline run kind (fetch, retry, remote-fetch).
	FieldRunKind = "run_kind"

	// FieldRecordID is the meme record ID being processed.
	FieldRecordID = "record_id"

	// FieldSource is the data source identifier.
	FieldSource = "source"

	// FieldComponent is the component/module name.
	FieldComponent = "component"
)

// Standard metric fields used for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds.
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field.
	FieldCount = "count"

	// FieldStatus is the operation status.
	FieldStatus = "status"

	// FieldSize is a payload size in bytes.
	FieldSize = "size"
)
