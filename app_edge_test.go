package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/declcad/pkg/document"
	"github.com/chazu/declcad/pkg/tessellate"
)

// ---------------------------------------------------------------------------
// 1. Empty editor: empty string -> 0 meshes, 0 errors.
//    (TestE2EEmptySource already exists; this verifies additional invariants.)
// ---------------------------------------------------------------------------

func TestE2EEmptySourceExtended(t *testing.T) {
	app := NewApp()
	result := app.Evaluate("")

	if len(result.Errors) != 0 {
		t.Errorf("expected 0 errors for empty source, got %d", len(result.Errors))
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes for empty source, got %d", len(result.Meshes))
	}
	// Ensure slices are non-nil (JSON should serialize as [] not null).
	if result.Meshes == nil {
		t.Error("Meshes should be non-nil empty slice, got nil")
	}
	if result.Errors == nil {
		t.Error("Errors should be non-nil empty slice, got nil")
	}
	if result.Suggestions == nil {
		t.Error("Suggestions should be non-nil empty slice, got nil")
	}
	if result.Name == "" {
		t.Error("Evaluate should open a scratch document")
	}
}

// ---------------------------------------------------------------------------
// 2. Syntax errors carry file, line and column.
// ---------------------------------------------------------------------------

func TestE2ESyntaxErrorWithLineInfo(t *testing.T) {
	app := NewApp()

	// Put valid code on line 1, broken code on line 2 so line info is meaningful.
	source := "(+ 1 2)\n(part :name \"test\""
	result := app.Evaluate(source)

	if len(result.Errors) == 0 {
		t.Fatal("expected at least one error for unmatched parens")
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes on syntax error, got %d", len(result.Meshes))
	}

	e := result.Errors[0]
	if !strings.Contains(e, ":2:1:") || !strings.Contains(e, "unclosed") {
		t.Errorf("expected an unclosed paren at 2:1, got %q", e)
	}
}

func TestE2ESyntaxErrorUnexpectedClose(t *testing.T) {
	app := NewApp()

	result := app.Evaluate("(box))")

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0], ":1:6: unexpected )") {
		t.Errorf("unexpected error text %q", result.Errors[0])
	}
}

// ---------------------------------------------------------------------------
// 3. Undefined shape reference -> eval error naming the shape.
// ---------------------------------------------------------------------------

func TestE2EUndefinedShapeReference(t *testing.T) {
	app := NewApp()

	source := `
(defshape "shelf" (box :dx 600 :dy 300 :dz 18))

(part :name "unit" (fuse (shape "shelf") (shape "nonexistent")))
`
	result := app.Evaluate(source)

	if len(result.Errors) == 0 {
		t.Fatal("expected eval error for undefined shape reference")
	}

	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "nonexistent") {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected error mentioning 'nonexistent', got: %v", result.Errors)
	}

	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes on error, got %d", len(result.Meshes))
	}
}

// ---------------------------------------------------------------------------
// 4. Degenerate dimensions: error or degenerate mesh, never a panic.
// ---------------------------------------------------------------------------

func TestE2EDegenerateDimensions(t *testing.T) {
	sources := map[string]string{
		"zero":     `(part :name "bad" (box :dx 0 :dy 100 :dz 19))`,
		"all zero": `(part :name "void" (box :dx 0 :dy 0 :dz 0))`,
		"negative": `(part :name "negative" (box :dx -100 :dy 100 :dz 19))`,
		"sphere":   `(part :name "dot" (sphere :radius 0))`,
	}
	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			app := NewApp()
			result := app.Evaluate(source)
			if len(result.Errors) > 0 {
				t.Logf("%s produced error (acceptable): %s", name, result.Errors[0])
				return
			}
			t.Logf("%s produced %d meshes (no error)", name, len(result.Meshes))
		})
	}
}

// ---------------------------------------------------------------------------
// 5. Rapid evaluation: no panics, the last source wins.
// ---------------------------------------------------------------------------

func TestE2ERapidEvaluation(t *testing.T) {
	app := NewApp()

	sources := []string{
		`(part :name "a" (box :dx 100 :dy 50 :dz 10))`,
		`(part :name "b" (box :dx 200 :dy 100 :dz 20))`,
		`(+ 1 2)`,
		``,
		`(part :name "c" (cylinder :radius 30 :height 150))`,
		`(part :name "d" (box :dx 400 :dy 200 :dz 18))`,
		`(+ 100 200)`,
		``,
		`(part :name "e" (sphere :radius 25))`,
		`(part :name "f" (box :dx 600 :dy 300 :dz 18))`,
	}

	var last EvalResult
	for i, source := range sources {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("iteration %d panicked: %v", i, r)
				}
			}()
			last = app.Evaluate(source)
		}()
	}
	if len(last.Meshes) != 1 || last.Meshes[0].Name != "f" {
		t.Errorf("expected only part 'f' after the last evaluation, got %v", names(last.Meshes))
	}
}

func TestE2ERapidEvaluationAlternating(t *testing.T) {
	// Alternates between valid and invalid sources rapidly. Invalid sources
	// keep the parts of the last valid one.
	app := NewApp()

	steps := []struct {
		source string
		parts  []string
	}{
		{`(part :name "ok" (box :dx 100 :dy 50 :dz 10))`, []string{"ok"}},
		{`(part :name "broken"`, []string{"ok"}},
		{``, nil},
		{`(shape "missing")`, nil},
		{`(part :name "also-ok" (box :dx 200 :dy 100 :dz 20))`, []string{"also-ok"}},
		{`(+ 1 2)`, nil},
		{`;; just a comment`, nil},
		{`(part :name "fine" (box :dx 300 :dy 150 :dz 30))`, []string{"fine"}},
		{`(undefined-func 1 2 3)`, []string{"fine"}},
		{`(part :name "last" (box :dx 400 :dy 200 :dz 18))`, []string{"last"}},
	}

	for i, step := range steps {
		result := app.Evaluate(step.source)
		got := names(result.Meshes)
		if fmt.Sprint(got) != fmt.Sprint(step.parts) {
			t.Errorf("step %d (%q): expected parts %v, got %v", i, step.source, step.parts, got)
		}
	}
}

// ---------------------------------------------------------------------------
// 6. Large dimensions: valid mesh without crash.
// ---------------------------------------------------------------------------

func TestE2ELargeDimensions(t *testing.T) {
	app := NewApp()

	source := `(part :name "huge" (box :dx 10000 :dy 10000 :dz 1900))`
	result := app.Evaluate(source)

	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors for large box: %v", result.Errors)
	}
	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh for large box, got %d", len(result.Meshes))
	}

	m := result.Meshes[0]
	if len(m.Vertices) == 0 {
		t.Error("large box mesh should have vertices")
	}
	if len(m.Normals) == 0 {
		t.Error("large box mesh should have normals")
	}
	if len(m.Indices) == 0 {
		t.Error("large box mesh should have indices")
	}
	if m.Name != "huge" {
		t.Errorf("expected part name 'huge', got %q", m.Name)
	}
}

// ---------------------------------------------------------------------------
// 7. Names: duplicates are rejected, unnamed roots still render.
// ---------------------------------------------------------------------------

func TestE2EDuplicatePartNames(t *testing.T) {
	app := NewApp()

	source := `
(part :name "leg" (box :dx 50 :dy 50 :dz 700))
(part :name "leg" (box :dx 50 :dy 50 :dz 700 :position (vec3 500 0 0)))
`
	result := app.Evaluate(source)

	if len(result.Errors) == 0 {
		t.Fatal("expected an error for duplicate part names")
	}
	if !strings.Contains(strings.Join(result.Errors, "\n"), "leg") {
		t.Errorf("expected error mentioning 'leg', got %v", result.Errors)
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes, got %d", len(result.Meshes))
	}
}

func TestE2EUnnamedRoots(t *testing.T) {
	app := NewApp()

	result := app.Evaluate("(box :dx 10)\n(sphere :radius 3 :position (vec3 20 0 0))")

	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Meshes) != 2 {
		t.Fatalf("expected 2 meshes, got %d", len(result.Meshes))
	}
	for _, m := range result.Meshes {
		if m.Name == "" {
			t.Error("unnamed roots should still carry a label")
		}
	}
}

// ---------------------------------------------------------------------------
// 8. Comments and whitespace.
// ---------------------------------------------------------------------------

func TestE2ECommentsOnly(t *testing.T) {
	app := NewApp()

	for _, source := range []string{
		";; just a comment",
		"\n  ;; indented comment\n\n;; another\n  ",
		"   \t\n  ",
	} {
		result := app.Evaluate(source)
		if len(result.Errors) != 0 {
			t.Errorf("%q: expected 0 errors, got %v", source, result.Errors)
		}
		if len(result.Meshes) != 0 {
			t.Errorf("%q: expected 0 meshes, got %d", source, len(result.Meshes))
		}
	}
}

func TestE2ECommentsInsideShapes(t *testing.T) {
	app := NewApp()

	source := `
;; header
(part :name "shelf" ;; the only part
  (box :dx 600 ;; length
       :dy 300
       :dz 18))
`
	result := app.Evaluate(source)
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(result.Meshes))
	}
}

// ---------------------------------------------------------------------------
// 9. Arithmetic in definitions.
// ---------------------------------------------------------------------------

func TestE2ENestedArithmeticDef(t *testing.T) {
	app := NewApp()

	source := `
(def base 100)
(def width (* 2 (+ base 50)))
(def half (/ width 2.0))
(part :name "panel" (box :dx width :dy half :dz 10))
`
	result := app.Evaluate(source)
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(result.Meshes))
	}

	// The box spans x in [0, 300]; marching cubes stays within a cell of it.
	var maxX float32
	for i := 0; i < len(result.Meshes[0].Vertices); i += 3 {
		if x := result.Meshes[0].Vertices[i]; x > maxX {
			maxX = x
		}
	}
	if maxX < 280 || maxX > 320 {
		t.Errorf("expected max x near 300, got %v", maxX)
	}
}

// ---------------------------------------------------------------------------
// 10. Colour palette wraps for parts without a colour.
// ---------------------------------------------------------------------------

func TestE2EColorPaletteWrapping(t *testing.T) {
	app := NewApp()

	var b strings.Builder
	n := len(tessellate.Palette) + 2
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "(part :name \"p%d\" (box :dx 10 :dy 10 :dz 10 :position (vec3 %d 0 0)))\n", i, i*20)
	}
	fmt.Fprintf(&b, "(part :name \"red\" :color \"red\" (box :position (vec3 0 50 0)))\n")

	result := app.Evaluate(b.String())
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Meshes) != n+1 {
		t.Fatalf("expected %d meshes, got %d", n+1, len(result.Meshes))
	}
	for i := 0; i < n; i++ {
		want := tessellate.Palette[i%len(tessellate.Palette)]
		if got := result.Meshes[i].Color; got != want {
			t.Errorf("part %d: expected colour %s, got %s", i, want, got)
		}
	}
	if got := result.Meshes[n].Color; got != "#ff0000" {
		t.Errorf("explicit colour: expected #ff0000, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// 11. Editor bindings: completion and diagnostics.
// ---------------------------------------------------------------------------

func TestE2ESetCursorSuggestions(t *testing.T) {
	app := NewApp()
	app.Evaluate("(cyl")

	got := app.SetCursor(0, 4)
	if len(got) == 0 || got[0] != "cylinder" {
		t.Errorf("expected cylinder first, got %v", got)
	}
}

func TestE2EDiagnosticsMatchEvaluate(t *testing.T) {
	app := NewApp()
	result := app.Evaluate("(box :radius 2)")

	diags := app.Diagnostics()
	if len(diags) == 0 {
		t.Fatal("expected diagnostics for an unknown parameter")
	}
	if fmt.Sprint(diags) != fmt.Sprint(result.Errors) {
		t.Errorf("Diagnostics %v differ from Evaluate errors %v", diags, result.Errors)
	}
}

func TestE2ENoDocument(t *testing.T) {
	app := NewApp()

	if got := app.SetCursor(0, 0); len(got) != 0 {
		t.Errorf("expected no suggestions without a document, got %v", got)
	}
	if got := app.Diagnostics(); len(got) != 0 {
		t.Errorf("expected no diagnostics without a document, got %v", got)
	}
	if err := app.Save(); !errors.Is(err, document.ErrNoDocument) {
		t.Errorf("expected ErrNoDocument from Save, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 12. Files: save, reopen and export.
// ---------------------------------------------------------------------------

func TestE2ESaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shelf.dcad")
	source := `(part :name "shelf" (box :dx 600 :dy 300 :dz 18))`

	app := NewApp()
	app.Evaluate(source)
	if err := app.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != source {
		t.Errorf("saved %q, want %q", data, source)
	}

	other := NewApp()
	result := other.Open(path)
	if result.Unsaved {
		t.Error("a freshly opened document should not be unsaved")
	}
	if len(result.Meshes) != 1 || result.Meshes[0].Name != "shelf" {
		t.Errorf("expected the shelf part, got %v", names(result.Meshes))
	}
	if docs := other.Documents(); len(docs) != 1 || docs[0].Name != path {
		t.Errorf("expected one open document %s, got %v", path, docs)
	}
}

func TestE2EOpenMissingFile(t *testing.T) {
	app := NewApp()
	result := app.Open(filepath.Join(t.TempDir(), "missing.dcad"))

	if len(result.Errors) == 0 {
		t.Fatal("expected the load error on the document")
	}
	if !result.Unsaved {
		t.Error("a document that failed to load should be unsaved")
	}
}

func TestE2EExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "box.stl")

	app := NewApp()
	app.Evaluate(`(part :name "a" (box :dx 10 :dy 10 :dz 10)) (part :name "b" (sphere :radius 4 :position (vec3 20 0 0)))`)
	if err := app.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat export: %v", err)
	}
	// Binary STL: 84 byte header plus 50 bytes per triangle.
	if info.Size() <= 84 || (info.Size()-84)%50 != 0 {
		t.Errorf("unexpected binary STL size %d", info.Size())
	}
}

func TestE2EExportNothing(t *testing.T) {
	app := NewApp()
	app.Evaluate("")

	err := app.Export(filepath.Join(t.TempDir(), "empty.stl"))
	if !errors.Is(err, document.ErrNothingToExport) {
		t.Errorf("expected ErrNothingToExport, got %v", err)
	}
	var ioErr *document.IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "export" {
		t.Errorf("expected an export IOError, got %v", err)
	}
}

func names(parts []tessellate.Part) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p.Name)
	}
	return out
}
