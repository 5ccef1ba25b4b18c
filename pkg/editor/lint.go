package editor

import (
	"fmt"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/chazu/declcad/pkg/engine"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Diagnostic is one finding in a source file. Line and Column are 1-based;
// Column is 0 when unknown.
type Diagnostic struct {
	File     string
	Line     int
	Column   int
	Message  string
	Severity Severity
}

// String renders the diagnostic in the usual file:line:col form.
func (d Diagnostic) String() string {
	switch {
	case d.Line == 0:
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	case d.Column == 0:
		return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
}

// Linter reports syntax problems in declcad source.
type Linter struct {
	tooling
	lexer chroma.Lexer
}

// NewLinter returns a linter that tokenizes with chroma's Scheme lexer.
func NewLinter(opts ...Option) *Linter {
	lexer := lexers.Get("scheme")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return &Linter{tooling: newTooling(opts), lexer: lexer}
}

// Lint returns the diagnostics for source. Parenthesis balance is checked
// first since it gives exact columns; a balanced source is then parsed.
func (l *Linter) Lint(name, source string) []Diagnostic {
	var diags []Diagnostic
	l.guard("lint", func() error {
		found, err := l.parens(name, source)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			for _, e := range engine.Parse(source) {
				found = append(found, Diagnostic{
					File:    name,
					Line:    e.Line,
					Column:  e.Col,
					Message: e.Message,
				})
			}
		}
		diags = found
		return nil
	})
	return diags
}

// parens walks the token stream, skipping strings and comments, and reports
// every unexpected closing paren and every paren left open.
func (l *Linter) parens(name, source string) ([]Diagnostic, error) {
	it, err := l.lexer.Tokenise(nil, source)
	if err != nil {
		return nil, err
	}

	type pos struct{ line, col int }
	var (
		diags []Diagnostic
		open  []pos
		cur   = pos{1, 1}
	)
	for tok := it(); tok != chroma.EOF; tok = it() {
		skip := tok.Type.InCategory(chroma.Comment) || tok.Type.InSubCategory(chroma.LiteralString)
		for _, r := range tok.Value {
			if !skip {
				switch r {
				case '(':
					open = append(open, cur)
				case ')':
					if len(open) == 0 {
						diags = append(diags, Diagnostic{
							File: name, Line: cur.line, Column: cur.col,
							Message: "unexpected )",
						})
					} else {
						open = open[:len(open)-1]
					}
				}
			}
			if r == '\n' {
				cur = pos{cur.line + 1, 1}
			} else {
				cur.col++
			}
		}
	}
	for _, p := range open {
		diags = append(diags, Diagnostic{
			File: name, Line: p.line, Column: p.col,
			Message: "unclosed (",
		})
	}
	return diags, nil
}
