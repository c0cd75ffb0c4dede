package queryx

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common failure classes.
var (
	// ErrEmptySpec is returned when a capture specification resolves to nothing.
	ErrEmptySpec = errors.New("queryx: specification resolves to nothing")

	// ErrDisposed is returned when operating on a disposed connection,
	// command, transaction or builder.
	ErrDisposed = errors.New("queryx: resource already disposed")

	// ErrCapability is returned when a statement requests a clause the
	// configured capability set does not support.
	ErrCapability = errors.New("queryx: capability not supported")
)

// CaptureError reports a failure while capturing a symbolic expression.
// Index is the 0-based position of the failing specification when multiple
// specifications were supplied in one call, or -1 for a single specification.
type CaptureError struct {
	Index  int
	Reason string
}

// Error returns the error string.
func (e *CaptureError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("queryx: capture: specification %d %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("queryx: capture: %s", e.Reason)
}

// Is reports whether the target error matches an empty-specification capture.
func (e *CaptureError) Is(err error) bool {
	return err == ErrEmptySpec && strings.Contains(e.Reason, "resolves to nothing")
}

// NewCaptureError returns a new CaptureError for a single specification.
func NewCaptureError(reason string) *CaptureError {
	return &CaptureError{Index: -1, Reason: reason}
}

// NewCaptureErrorAt returns a new CaptureError with the failing specification index.
func NewCaptureErrorAt(index int, reason string) *CaptureError {
	return &CaptureError{Index: index, Reason: reason}
}

// IsCaptureError returns true if the error is a CaptureError.
func IsCaptureError(err error) bool {
	if err == nil {
		return false
	}
	var e *CaptureError
	return errors.As(err, &e)
}

// ResolutionError reports a name, schema or capability resolution failure
// during statement construction. Resolution errors abort the current builder
// call before any SQL is rendered.
type ResolutionError struct {
	Name   string // Offending table, column, alias or capability name.
	Reason string
}

// Error returns the error string.
func (e *ResolutionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("queryx: resolve %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("queryx: resolve: %s", e.Reason)
}

// Is reports whether the target error matches a capability resolution failure.
func (e *ResolutionError) Is(err error) bool {
	return err == ErrCapability && strings.Contains(e.Reason, "capability")
}

// NewResolutionError returns a new ResolutionError.
func NewResolutionError(name, reason string) *ResolutionError {
	return &ResolutionError{Name: name, Reason: reason}
}

// IsResolutionError returns true if the error is a ResolutionError.
func IsResolutionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ResolutionError
	return errors.As(err, &e)
}

// ParamDump describes one bound parameter in a command dump.
type ParamDump struct {
	Name      string
	Type      string
	Size      int64
	Precision int64
	Scale     int64
	Value     any
}

// CommandDump is a reproducible description of a failed command: the SQL
// text plus every bound parameter with its schema metadata.
type CommandDump struct {
	SQL    string
	Params []ParamDump
}

// String renders the dump in a single human-readable block.
func (d CommandDump) String() string {
	var sb strings.Builder
	sb.WriteString(d.SQL)
	for _, p := range d.Params {
		fmt.Fprintf(&sb, "\n  %s %s(%d,%d,%d) = %v", p.Name, p.Type, p.Size, p.Precision, p.Scale, p.Value)
	}
	return sb.String()
}

// ExecError wraps a driver error together with a full dump of the command
// that produced it.
type ExecError struct {
	Dump CommandDump
	Err  error
}

// Error returns the error string.
func (e *ExecError) Error() string {
	return fmt.Sprintf("queryx: exec: %v\n%s", e.Err, e.Dump)
}

// Unwrap returns the underlying driver error.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// NewExecError returns a new ExecError.
func NewExecError(dump CommandDump, err error) *ExecError {
	return &ExecError{Dump: dump, Err: err}
}

// IsExecError returns true if the error is an ExecError.
func IsExecError(err error) bool {
	if err == nil {
		return false
	}
	var e *ExecError
	return errors.As(err, &e)
}

// LifecycleError reports a fatal misuse of a disposed or removed resource.
// Lifecycle errors are never silently recovered.
type LifecycleError struct {
	Resource string // e.g. "connection", "command", "transaction"
	Op       string // Operation attempted on the disposed resource.
}

// Error returns the error string.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("queryx: %s on disposed %s", e.Op, e.Resource)
}

// Is reports whether the target error matches ErrDisposed.
func (e *LifecycleError) Is(err error) bool {
	return err == ErrDisposed
}

// NewLifecycleError returns a new LifecycleError.
func NewLifecycleError(resource, op string) *LifecycleError {
	return &LifecycleError{Resource: resource, Op: op}
}

// IsLifecycleError returns true if the error is a LifecycleError.
func IsLifecycleError(err error) bool {
	if err == nil {
		return false
	}
	var e *LifecycleError
	return errors.As(err, &e)
}
