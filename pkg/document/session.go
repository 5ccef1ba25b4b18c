package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/chazu/declcad/pkg/editor"
	"github.com/chazu/declcad/pkg/engine"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/proxy"
	"github.com/chazu/declcad/pkg/refresh"
	"github.com/chazu/declcad/pkg/shape"
	"github.com/chazu/declcad/pkg/tessellate"
	"github.com/samber/lo"
)

// Viewer displays parts. It is called on the session's loop.
type Viewer interface {
	SetParts(parts []tessellate.Part)
	FitAll()
}

// ErrNoDocument is returned by editing operations when no document is
// active.
var ErrNoDocument = errors.New("no active document")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. It is shared with the proxy layer,
// the refresh scheduler and the editor tooling.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStatePath persists editor state to path, debounced.
func WithStatePath(path string) Option {
	return func(s *Session) { s.statePath = path }
}

// WithDisplayMesh sets the tessellation used for the viewer.
func WithDisplayMesh(o kernel.MeshOptions) Option {
	return func(s *Session) { s.display = o }
}

// WithDelay overrides the debounce delay of one refresh target.
func WithDelay(t refresh.Target, d time.Duration) Option {
	return func(s *Session) { s.delays[t] = d }
}

// Session ties the open documents to the live shape tree. All methods must
// be called from the goroutine draining poster, which is also where
// debounced refreshes and file reloads run.
type Session struct {
	engine    *engine.Engine
	linter    *editor.Linter
	completer *editor.Completer
	proxies   *proxy.Context
	scheduler *refresh.Scheduler
	viewer    Viewer
	poster    refresh.Poster
	logger    *slog.Logger

	statePath string
	display   kernel.MeshOptions
	delays    map[refresh.Target]time.Duration

	documents   []*Document
	active      *Document
	roots       []*shape.Node
	labels      []string
	projectPath string
	lastPath    string
	watches     map[*Document]context.CancelFunc
}

// NewSession returns a session that builds with k and displays on viewer.
// Debounced work and file reloads are posted to poster; a nil poster
// disables file watching and runs refreshes on timer goroutines.
func NewSession(k kernel.Kernel, viewer Viewer, poster refresh.Poster, opts ...Option) *Session {
	s := &Session{
		engine:  engine.NewEngine(),
		viewer:  viewer,
		poster:  poster,
		logger:  slog.Default(),
		display: kernel.DefaultMeshOptions(),
		delays: map[refresh.Target]time.Duration{
			refresh.Redraw:    refresh.DefaultRedrawDelay,
			refresh.FitAll:    refresh.DefaultFitAllDelay,
			refresh.SaveState: refresh.DefaultSaveStateDelay,
		},
		watches: make(map[*Document]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.linter = editor.NewLinter(editor.WithLogger(s.logger))
	s.completer = editor.NewCompleter(editor.WithLogger(s.logger))
	s.scheduler = refresh.New(poster, refresh.WithLogger(s.logger))
	s.scheduler.Handle(refresh.Redraw, s.delays[refresh.Redraw], s.Redraw)
	s.scheduler.Handle(refresh.FitAll, s.delays[refresh.FitAll], s.viewer.FitAll)
	s.scheduler.Handle(refresh.SaveState, s.delays[refresh.SaveState], func() {
		if err := s.SaveState(); err != nil {
			s.logger.Warn("saving editor state failed", "err", err)
		}
	})
	s.proxies = proxy.NewContext(k, proxy.WithRequester(s.scheduler), proxy.WithLogger(s.logger))
	return s
}

// Proxies returns the proxy context backing the live tree.
func (s *Session) Proxies() *proxy.Context { return s.proxies }

// Roots returns the live root nodes of the active document.
func (s *Session) Roots() []*shape.Node { return append([]*shape.Node(nil), s.roots...) }

// Active returns the active document, or nil.
func (s *Session) Active() *Document { return s.active }

// Documents returns the open documents.
func (s *Session) Documents() []*Document { return append([]*Document(nil), s.documents...) }

// ProjectPath returns the project directory.
func (s *Session) ProjectPath() string { return s.projectPath }

// SetProjectPath sets the project directory.
func (s *Session) SetProjectPath(p string) {
	s.projectPath = p
	s.scheduler.Request(refresh.SaveState)
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// Open opens path, or activates it when it is already open. A document
// that fails to load is still opened and carries the error.
func (s *Session) Open(path string) (*Document, error) {
	if name, err := ExpandPath(path); err == nil {
		if d := s.find(name); d != nil {
			s.Activate(d)
			return d, nil
		}
	}
	d, err := Open(path)
	s.add(d)
	s.Activate(d)
	return d, err
}

// NewDocument creates an empty unsaved document at path and activates it.
func (s *Session) NewDocument(path string) (*Document, error) {
	d, err := New(path)
	if err != nil {
		return nil, err
	}
	s.add(d)
	s.Activate(d)
	return d, nil
}

func (s *Session) find(name string) *Document {
	d, _ := lo.Find(s.documents, func(d *Document) bool { return d.Name == name })
	return d
}

func (s *Session) add(d *Document) {
	s.documents = append(s.documents, d)
	s.lastPath = filepath.Dir(d.Name)
	s.watch(d)
	s.logger.Info("document opened", "path", d.Name)
}

// Close closes d. When d was active the first remaining document becomes
// active, or the tree is cleared.
func (s *Session) Close(d *Document) {
	if cancel, ok := s.watches[d]; ok {
		cancel()
		delete(s.watches, d)
	}
	s.documents = lo.Without(s.documents, d)
	if s.active == d {
		s.active = nil
		if len(s.documents) > 0 {
			s.Activate(s.documents[0])
		} else {
			s.apply(nil)
		}
	}
	s.scheduler.Request(refresh.SaveState)
}

// Activate makes d the active document and evaluates it.
func (s *Session) Activate(d *Document) {
	s.active = d
	s.evaluate()
	s.scheduler.Request(refresh.SaveState)
}

// SetSource replaces the active document's source and re-evaluates it.
func (s *Session) SetSource(src string) error {
	d := s.active
	if d == nil {
		return ErrNoDocument
	}
	d.SetSource(src)
	s.evaluate()
	s.scheduler.Request(refresh.SaveState)
	return nil
}

// SetCursor records the cursor of the active document and refreshes its
// suggestions.
func (s *Session) SetCursor(c editor.Cursor) error {
	d := s.active
	if d == nil {
		return ErrNoDocument
	}
	d.Cursor = c
	d.Suggestions = s.completer.Complete(d.Source, c)
	s.scheduler.Request(refresh.SaveState)
	return nil
}

// Save writes the active document.
func (s *Session) Save() error {
	if s.active == nil {
		return ErrNoDocument
	}
	defer s.scheduler.Request(refresh.SaveState)
	return s.active.Save()
}

// SaveAs writes the active document to a new path.
func (s *Session) SaveAs(path string) error {
	d := s.active
	if d == nil {
		return ErrNoDocument
	}
	if cancel, ok := s.watches[d]; ok {
		cancel()
		delete(s.watches, d)
	}
	err := d.SaveAs(path)
	s.watch(d)
	s.lastPath = filepath.Dir(d.Name)
	s.scheduler.Request(refresh.SaveState)
	return err
}

// Shutdown stops file watches, flushes state and releases every kernel
// handle.
func (s *Session) Shutdown() {
	for d, cancel := range s.watches {
		cancel()
		delete(s.watches, d)
	}
	if err := s.SaveState(); err != nil {
		s.logger.Warn("saving editor state failed", "err", err)
	}
	s.proxies.ReleaseAll()
}

func (s *Session) watch(d *Document) {
	if s.poster == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	err := d.Watch(ctx, func() {
		s.poster.Post(func() { s.reloaded(d) })
	})
	if err != nil {
		cancel()
		s.logger.Debug("not watching document", "path", d.Name, "err", err)
		return
	}
	s.watches[d] = cancel
}

// reloaded handles a change of d on disk.
func (s *Session) reloaded(d *Document) {
	changed, err := d.Reload()
	if err != nil {
		s.logger.Debug("reload failed", "path", d.Name, "err", err)
		return
	}
	if changed && d == s.active {
		s.logger.Info("document changed on disk", "path", d.Name)
		s.evaluate()
	}
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// evaluate lints, completes and evaluates the active document, then
// reconciles the result onto the live tree. On lint, evaluation or
// validation errors the live tree, and so the viewer, keep their last state.
func (s *Session) evaluate() {
	d := s.active
	if d == nil {
		return
	}

	diags := s.linter.Lint(d.Name, d.Source)
	errs := lo.Map(diags, func(dg editor.Diagnostic, _ int) string { return dg.String() })
	if d.loadErr != "" {
		errs = append([]string{d.loadErr}, errs...)
	}
	d.Suggestions = s.completer.Complete(d.Source, d.Cursor)
	defer func() { d.Errors = errs }()

	if lo.SomeBy(diags, func(dg editor.Diagnostic) bool { return dg.Severity == editor.SeverityError }) {
		return
	}

	res, evalErrs, err := s.engine.Evaluate(d.Source)
	switch {
	case errors.Is(err, engine.ErrSuperseded):
		return
	case err != nil:
		errs = append(errs, fmt.Sprintf("%s: %v", d.Name, err))
		return
	case len(evalErrs) > 0:
		for _, e := range evalErrs {
			errs = append(errs, editor.Diagnostic{File: d.Name, Line: e.Line, Column: e.Col, Message: e.Message}.String())
		}
		return
	}

	issues := shape.Validate(res.Roots)
	for _, is := range issues {
		errs = append(errs, fmt.Sprintf("%s: %v", d.Name, is))
	}
	if shape.HasErrors(issues) {
		return
	}

	s.apply(res.Roots)
	for _, e := range s.proxies.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %v", d.Name, e))
	}
}

// apply reconciles next onto the live roots and builds them.
func (s *Session) apply(next []*shape.Node) {
	s.proxies.Batch(func() {
		s.roots = shape.ReconcileRoots(s.roots, next)
		s.proxies.RealizeAll(s.roots)
	})

	labels := lo.Map(s.roots, func(n *shape.Node, _ int) string { return n.Label() })
	if !slices.Equal(labels, s.labels) {
		s.labels = labels
		s.scheduler.Request(refresh.FitAll)
	}
	s.scheduler.Request(refresh.Redraw)
}

// Redraw pushes the current parts to the viewer.
func (s *Session) Redraw() {
	parts, err := tessellate.Tessellate(s.proxies, s.roots, s.display)
	if err != nil {
		s.logger.Warn("tessellation failed", "err", err)
	}
	s.viewer.SetParts(parts)
}

// ---------------------------------------------------------------------------
// Persisted state
// ---------------------------------------------------------------------------

// State captures the session for persistence.
func (s *Session) State() *State {
	st := &State{
		ProjectPath: s.projectPath,
		LastPath:    s.lastPath,
		Documents:   lo.Map(s.documents, func(d *Document, _ int) DocumentState { return stateOf(d) }),
	}
	if s.active != nil {
		st.Active = s.active.Name
	}
	return st
}

// SaveState writes the state file, if one is configured.
func (s *Session) SaveState() error {
	if s.statePath == "" {
		return nil
	}
	return s.State().Save(s.statePath)
}

// Restore reopens the documents recorded in st and activates the one that
// was active.
func (s *Session) Restore(st *State) {
	s.projectPath = st.ProjectPath
	s.lastPath = st.LastPath
	var active *Document
	for _, ds := range st.Documents {
		if s.find(ds.Name) != nil {
			continue
		}
		d, err := Open(ds.Name)
		if err != nil {
			s.logger.Warn("restoring document failed", "path", ds.Name, "err", err)
		}
		d.Cursor = ds.Cursor
		s.add(d)
		if d.Name == st.Active {
			active = d
		}
	}
	if active == nil && len(s.documents) > 0 {
		active = s.documents[0]
	}
	if active != nil {
		s.Activate(active)
	}
}
