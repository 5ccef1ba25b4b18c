// Package editor provides the source tooling shown next to the code view:
// diagnostics while typing and completion suggestions at the cursor.
//
// Tooling is best-effort. Every failure, including a panic inside a
// tokenizer or parser, is reported as a ToolingError to the debug log and
// degraded to an empty result.
package editor

import (
	"fmt"
	"log/slog"
)

// Cursor is an editor position. Line is zero-based, Column counts runes
// from the start of the line.
type Cursor struct {
	Line   int `toml:"line"`
	Column int `toml:"column"`
}

// ToolingError wraps a linter or completer failure.
type ToolingError struct {
	Op  string // "lint" or "complete"
	Err error
}

func (e *ToolingError) Error() string {
	return fmt.Sprintf("editor %s: %v", e.Op, e.Err)
}

func (e *ToolingError) Unwrap() error { return e.Err }

// Option configures a Linter or Completer.
type Option func(*tooling)

// WithLogger sets the logger tooling failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(t *tooling) { t.logger = l }
}

// WithLimit caps the number of completion suggestions.
func WithLimit(n int) Option {
	return func(t *tooling) { t.limit = n }
}

// WithThreshold sets the minimum fuzzy similarity in [0,1] for a
// completion candidate that is not a prefix match.
func WithThreshold(s float64) Option {
	return func(t *tooling) { t.threshold = s }
}

// tooling holds the settings shared by the linter and completer.
type tooling struct {
	logger    *slog.Logger
	limit     int
	threshold float64
}

func newTooling(opts []Option) tooling {
	t := tooling{
		logger:    slog.Default(),
		limit:     DefaultLimit,
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(&t)
	}
	return t
}

// degrade logs a swallowed tooling failure.
func (t *tooling) degrade(op string, err error) {
	t.logger.Debug("editor tooling degraded", "err", &ToolingError{Op: op, Err: err})
}

// guard runs fn, turning a panic into a degraded failure.
func (t *tooling) guard(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			t.degrade(op, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		t.degrade(op, err)
	}
}
