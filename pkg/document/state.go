package document

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chazu/declcad/pkg/editor"
	"github.com/pelletier/go-toml/v2"
)

// DefaultStatePath is where editor state is kept between runs.
const DefaultStatePath = "~/.config/declcad/state.toml"

// State is the persisted editor state.
type State struct {
	ProjectPath string          `toml:"project_path"`
	LastPath    string          `toml:"last_path"`
	Active      string          `toml:"active"`
	Documents   []DocumentState `toml:"documents"`
}

// DocumentState is the persisted part of a Document. Sources live in
// their own files.
type DocumentState struct {
	Name    string        `toml:"name"`
	Unsaved bool          `toml:"unsaved"`
	Errors  []string      `toml:"errors"`
	Cursor  editor.Cursor `toml:"cursor"`
}

// LoadState reads state from path. A missing file yields an empty state.
func LoadState(path string) (*State, error) {
	name, err := ExpandPath(path)
	if err != nil {
		return nil, &IOError{Op: "state", Path: path, Err: err}
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return &State{}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "state", Path: name, Err: err}
	}
	var s State
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, &IOError{Op: "state", Path: name, Err: err}
	}
	return &s, nil
}

// Save writes the state to path, creating parent directories.
func (s *State) Save(path string) error {
	name, err := ExpandPath(path)
	if err != nil {
		return &IOError{Op: "state", Path: path, Err: err}
	}
	data, err := toml.Marshal(s)
	if err != nil {
		return &IOError{Op: "state", Path: name, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return &IOError{Op: "state", Path: name, Err: err}
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return &IOError{Op: "state", Path: name, Err: err}
	}
	return nil
}

// stateOf captures a document for persistence.
func stateOf(d *Document) DocumentState {
	return DocumentState{
		Name:    d.Name,
		Unsaved: d.Unsaved,
		Errors:  append([]string(nil), d.Errors...),
		Cursor:  d.Cursor,
	}
}
