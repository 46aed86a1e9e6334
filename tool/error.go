package tool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/petal-labs/toolhost/schema"
)

const (
	// ErrorCodeUnknownTool is returned when the requested name is not registered.
	ErrorCodeUnknownTool = "UNKNOWN_TOOL"
	// ErrorCodeEnvironmentInvalid is returned while the declared environment does not validate.
	ErrorCodeEnvironmentInvalid = "ENVIRONMENT_INVALID"
	// ErrorCodeInputInvalid is returned when call input fails the tool's schema.
	ErrorCodeInputInvalid = "INPUT_INVALID"
	// ErrorCodeHandlerException is returned when a handler fails or panics.
	ErrorCodeHandlerException = "HANDLER_EXCEPTION"
	// ErrorCodeAborted is returned when the call was cancelled or timed out first.
	ErrorCodeAborted = "ABORTED"
	// ErrorCodeBridgeFailure is returned when a bridged protocol call fails.
	ErrorCodeBridgeFailure = "BRIDGE_FAILURE"
	// ErrorCodeInvalidRequest is returned when a transport cannot decode a request.
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
	// ErrorCodeEncodeFailure is returned when a response payload cannot be encoded.
	ErrorCodeEncodeFailure = "ENCODE_FAILURE"
)

// Error is the structured failure carried in every error response body.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Issues  []schema.Issue `json:"issues,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ErrorCodeHandlerException
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError builds an Error, falling back to the cause's message.
func NewError(code, message string, cause error) *Error {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ErrorCodeHandlerException
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &Error{
		Code:    cleanCode,
		Message: cleanMsg,
		Cause:   cause,
	}
}

// WithIssues attaches validation issues to e.
func (e *Error) WithIssues(issues []schema.Issue) *Error {
	if e == nil || len(issues) == 0 {
		return e
	}
	e.Issues = append(e.Issues, issues...)
	return e
}

// ErrorCode returns the code of a wrapped *Error, or "".
func ErrorCode(err error) string {
	var toolErr *Error
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Code
	}
	return ""
}

// Registration errors. These indicate a programming error in tool
// definitions and are never converted into responses.
var (
	ErrInvalidToolName = errors.New("tool: invalid tool name")
	ErrDuplicateTool   = errors.New("tool: duplicate tool name")
	ErrRegistrySealed  = errors.New("tool: registry is sealed")
	ErrNilHandler      = errors.New("tool: nil handler")
)

// RegistrationError reports why a definition was rejected.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("register %q: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
