// Package ai defines the contract between the scoring core and remote text
// generation providers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies generation failures.
type ErrorCode string

const (
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeNotAvailable   ErrorCode = "NOT_AVAILABLE"
	CodeNoAPIKey       ErrorCode = "NO_API_KEY"
	CodeInvalidJSON    ErrorCode = "INVALID_JSON"
	CodeNetworkError   ErrorCode = "NETWORK_ERROR"
	CodeQuotaExhausted ErrorCode = "QUOTA_EXHAUSTED"
)

// Options tune a single generation request.
type Options struct {
	// Temperature is sent as is; nil leaves the provider default.
	Temperature     *float32
	MaxOutputTokens int32
	// SkipCache bypasses any provider-side response cache.
	SkipCache bool
}

// Generator produces text for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, opts Options) (string, error)
	Model() string
}

// Error is a classified generation failure.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	return ""
}

// IsRateLimited reports whether err is a rate-limit failure, either by code
// or because its message mentions HTTP 429.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == CodeRateLimited || strings.Contains(err.Error(), "429")
}

// Availability tells whether AI scoring can be attempted and, if not, why.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}
