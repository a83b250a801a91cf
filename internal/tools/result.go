package tools

// Status reports whether a tool call succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorCode classifies tool failures for the model.
type ErrorCode string

const (
	// ErrCodeValidation marks rejected input (missing or out-of-range fields).
	ErrCodeValidation ErrorCode = "ValidationError"
	// ErrCodeExecution marks a tool that accepted its input but failed to act.
	ErrCodeExecution ErrorCode = "ExecutionError"
)

// Result is the uniform envelope simple tool handlers return. Business
// failures are data: they go in Error with StatusError so the model can
// adjust and retry, while the Go error stays nil.
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Error describes a tool failure in model-readable form.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}
