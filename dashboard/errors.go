// ABOUTME: Typed errors for dashboard data operations.
// ABOUTME: Enables programmatic error handling with errors.Is() and errors.As().
package dashboard

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic handling.
var (
	ErrFetch                = errors.New("fetch failed")
	ErrWrite                = errors.New("write rejected")
	ErrValidation           = errors.New("validation failed")
	ErrAuth                 = errors.New("not authenticated")
	ErrUpload               = errors.New("upload rejected")
	ErrScopeMismatch        = errors.New("record outside principal scope")
	ErrNotFound             = errors.New("record not found")
	ErrNotMounted           = errors.New("list not mounted")
	ErrUnmounted            = errors.New("list unmounted during fetch")
	ErrConfirmationRequired = errors.New("destructive action requires confirmation")
)

// FetchError reports a failed collection load. It is rendered inline by the
// affected view and never retried automatically.
type FetchError struct {
	Collection string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Collection, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// WriteError reports an insert/update/delete rejected by the backend or by
// scope validation.
type WriteError struct {
	Op         string // "insert", "update", "delete"
	Collection string
	ID         string
	Err        error
}

func (e *WriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// ValidationError lists required fields that are still empty. It is raised
// before any gateway call.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AuthError reports an invalid, expired or absent session.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Reason
	}
	return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// UploadError reports a file rejected by client-side type/size checks.
type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string { return "upload: " + e.Reason }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }
