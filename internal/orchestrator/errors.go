package orchestrator

import "fmt"

// Machine-readable error codes. Every error crossing the orchestration
// boundary carries one.
const (
	CodeInvalidContext        = "INVALID_CONTEXT"
	CodeQueryGenerationFailed = "QUERY_GENERATION_FAILED"
	CodeInitialSearchFailed   = "INITIAL_SEARCH_FAILED"
	CodeFollowupSearchFailed  = "FOLLOWUP_SEARCH_FAILED"
	CodeAnalysisFailed        = "ANALYSIS_FAILED"
	CodeFinalGenerationFailed = "FINAL_GENERATION_FAILED"
	CodeNoContent             = "NO_CONTENT"
)

// Error is the typed error crossing the orchestration boundary. No raw
// client error escapes un-normalized.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
