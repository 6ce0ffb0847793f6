package api

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the failure behind an Error for callers that need to
// branch on it, such as the CLI exit code mapping.
type ErrorKind string

const (
	// Configuration errors are rejected before any filesystem mutation.
	KindDuplicateTarget ErrorKind = "DuplicateTarget"
	KindDuplicateSource ErrorKind = "DuplicateSource"
	KindInvalidConfig   ErrorKind = "InvalidConfig"
	KindLinkActive      ErrorKind = "LinkActive"
	KindNotFound        ErrorKind = "NotFound"

	// Filesystem errors affect a single entry and never abort a pass.
	KindInvalidPath      ErrorKind = "InvalidPath"
	KindPermissionDenied ErrorKind = "PermissionDenied"
	KindAlreadyExists    ErrorKind = "AlreadyExists"
	KindFilesystem       ErrorKind = "Filesystem"

	// KindWatchSubsystem means change notifications are unavailable; the link
	// keeps running on periodic rescans only.
	KindWatchSubsystem ErrorKind = "WatchSubsystem"

	// KindFatal means the link cannot continue and moves to StateError.
	KindFatal ErrorKind = "Fatal"
)

// ErrorCategory groups kinds by how the system reacts to them.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "ConfigurationError"
	CategoryFilesystem    ErrorCategory = "FilesystemError"
	CategoryWatch         ErrorCategory = "WatchSubsystemError"
	CategoryFatal         ErrorCategory = "FatalLinkError"
)

// Category returns the handling category for the kind.
func (k ErrorKind) Category() ErrorCategory {
	switch k {
	case KindDuplicateTarget, KindDuplicateSource, KindInvalidConfig, KindLinkActive, KindNotFound:
		return CategoryConfiguration
	case KindWatchSubsystem:
		return CategoryWatch
	case KindFatal:
		return CategoryFatal
	default:
		return CategoryFilesystem
	}
}

// Error is the typed error returned by the core packages.
type Error struct {
	Kind ErrorKind
	// Op is the operation that failed, e.g. "create", "addLink".
	Op string
	// Path is the filesystem path or link identifier involved, if any.
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind, so errors.Is(err,
// &api.Error{Kind: api.KindDuplicateTarget}) works through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf creates an Error whose cause is a formatted message.
func Errorf(kind ErrorKind, op, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err should move a link to StateError.
func IsFatal(err error) bool {
	return IsKind(err, KindFatal)
}

// NewNotFoundError reports an unknown link identifier.
func NewNotFoundError(id string) *Error {
	return Errorf(KindNotFound, "lookup", id, "link %s not found", id)
}
