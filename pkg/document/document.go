// Package document manages source documents and the editing session that
// turns them into live geometry.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/declcad/pkg/editor"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
)

// IOError reports a failed load, save or export. It is attached to the
// document or returned to the caller and never crashes the session.
type IOError struct {
	Op   string // "open", "save", "export", "state"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(p)
}

// Document is one source file open in the editor.
type Document struct {
	Name        string        // absolute path
	Source      string        // current editor contents
	Cursor      editor.Cursor // last cursor position
	Unsaved     bool          // Source differs from the file on disk
	Errors      []string      // lint, evaluation, build and load errors
	Suggestions []string      // completions at Cursor

	loadErr string // kept in Errors until the document is saved
}

// Open loads the document at path. When the file cannot be read the
// returned document is empty, carries the load error in Errors, and the
// error is returned as an *IOError.
func Open(path string) (*Document, error) {
	name, err := ExpandPath(path)
	if err != nil {
		return &Document{Name: path, Errors: []string{err.Error()}}, &IOError{Op: "open", Path: path, Err: err}
	}
	d := &Document{Name: name}
	data, err := os.ReadFile(name)
	if err != nil {
		ioErr := &IOError{Op: "open", Path: name, Err: err}
		d.loadErr = ioErr.Error()
		d.Errors = []string{d.loadErr}
		d.Unsaved = true
		return d, ioErr
	}
	d.Source = string(data)
	return d, nil
}

// New returns an unsaved document that will be written to path.
func New(path string) (*Document, error) {
	name, err := ExpandPath(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return &Document{Name: name, Unsaved: true}, nil
}

// SetSource replaces the contents and recomputes Unsaved against the file
// on disk. A file that cannot be read leaves the document unsaved.
func (d *Document) SetSource(src string) {
	d.Source = src
	data, err := os.ReadFile(d.Name)
	d.Unsaved = err != nil || string(data) != src
}

// Save writes the contents to disk.
func (d *Document) Save() error {
	if err := os.MkdirAll(filepath.Dir(d.Name), 0o755); err != nil {
		return &IOError{Op: "save", Path: d.Name, Err: err}
	}
	if err := os.WriteFile(d.Name, []byte(d.Source), 0o644); err != nil {
		return &IOError{Op: "save", Path: d.Name, Err: err}
	}
	d.Unsaved = false
	d.loadErr = ""
	return nil
}

// SaveAs renames the document and writes it to the new path.
func (d *Document) SaveAs(path string) error {
	name, err := ExpandPath(path)
	if err != nil {
		return &IOError{Op: "save", Path: path, Err: err}
	}
	old := d.Name
	d.Name = name
	if err := d.Save(); err != nil {
		d.Name = old
		return err
	}
	return nil
}

// Reload re-reads the file when the document has no unsaved edits. It
// reports whether the contents changed.
func (d *Document) Reload() (bool, error) {
	if d.Unsaved {
		return false, nil
	}
	data, err := os.ReadFile(d.Name)
	if err != nil {
		return false, &IOError{Op: "open", Path: d.Name, Err: err}
	}
	if string(data) == d.Source {
		return false, nil
	}
	d.Source = string(data)
	return true, nil
}

// Watch calls changed whenever the file is written, created or renamed
// into place, until ctx is done. changed runs on the watcher goroutine;
// callers post it to their own loop before touching the document.
func (d *Document) Watch(ctx context.Context, changed func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return &IOError{Op: "watch", Path: d.Name, Err: err}
	}
	// Editors often replace files, so watch the directory.
	if err := w.Add(filepath.Dir(d.Name)); err != nil {
		w.Close()
		return &IOError{Op: "watch", Path: d.Name, Err: err}
	}
	name := d.Name
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					changed()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// ErrNothingToExport is returned by Export when no part has geometry.
var ErrNothingToExport = errors.New("nothing to export")
