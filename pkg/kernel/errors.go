package kernel

import (
	"fmt"
	"strings"
)

// BuildErrorKind classifies a construction failure.
type BuildErrorKind int

const (
	// Degenerate means the parameters describe no valid geometry
	// (zero or negative sizes, coincident points, fillet larger than the
	// solid allows).
	Degenerate BuildErrorKind = iota
	// MissingOperand means an operation lacked a required input shape.
	MissingOperand
	// Unsupported means the backend cannot build this combination.
	Unsupported
	// Internal means the backend itself failed.
	Internal
)

func (k BuildErrorKind) String() string {
	switch k {
	case Degenerate:
		return "degenerate"
	case MissingOperand:
		return "missing operand"
	case Unsupported:
		return "unsupported"
	case Internal:
		return "kernel failure"
	default:
		return fmt.Sprintf("BuildErrorKind(%d)", int(k))
	}
}

// GeometryBuildError is returned when the kernel rejects a construction.
// It is attached to the originating shape node and never aborts the
// process.
type GeometryBuildError struct {
	Kind    BuildErrorKind
	Shape   string // construction name, e.g. "fillet"
	Param   string // offending parameter, if known
	Node    string // originating node, filled in by the proxy layer
	Message string
	Err     error
}

func (e *GeometryBuildError) Error() string {
	var b strings.Builder
	if e.Node != "" {
		fmt.Fprintf(&b, "%s: ", e.Node)
	}
	if e.Shape != "" {
		fmt.Fprintf(&b, "%s: ", e.Shape)
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *GeometryBuildError) Unwrap() error { return e.Err }

// Degeneratef returns a Degenerate build error for shape's param.
func Degeneratef(shape, param, format string, args ...any) *GeometryBuildError {
	return &GeometryBuildError{
		Kind:    Degenerate,
		Shape:   shape,
		Param:   param,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unsupportedf returns an Unsupported build error for shape.
func Unsupportedf(shape, format string, args ...any) *GeometryBuildError {
	return &GeometryBuildError{
		Kind:    Unsupported,
		Shape:   shape,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internalf wraps a backend failure.
func Internalf(shape string, err error, format string, args ...any) *GeometryBuildError {
	return &GeometryBuildError{
		Kind:    Internal,
		Shape:   shape,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
