package logging

// Standardized field names for structured logging.
const (
	FieldFile        = "file_path"
	FieldInputFile   = "input_file"
	FieldOutputFile  = "output_file"
	FieldStrategy    = "strategy"
	FieldStage       = "stage"
	FieldInstitution = "institution"
	FieldTableID     = "table_id"
	FieldPage        = "page"
	FieldRow         = "row"
	FieldColumn      = "column"
	FieldRule        = "rule"
	FieldRawDate     = "raw_date"
	FieldCategory    = "category"
	FieldReason      = "reason"
	FieldOperation   = "operation"
	FieldStatus      = "status"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
	FieldCount       = "count"
	FieldRunID       = "run_id"
	FieldSessionID   = "session_id"
	FieldVersion     = "version"
	FieldDelimiter   = "delimiter"
)
