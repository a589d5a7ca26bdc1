package apperr

type Kind string

type AppError struct {
	Kind      Kind
	PublicMsg string            // safe to show to the caller
	Fields    map[string]string // optional field-level validation errors
	Err       error             // internal error, for logs only
}
