package main

import (
	"context"
	"log"
	"log/slog"
	"sync"

	"github.com/chazu/declcad/pkg/document"
	"github.com/chazu/declcad/pkg/editor"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/kernel/sdfx"
	"github.com/chazu/declcad/pkg/loop"
	"github.com/chazu/declcad/pkg/tessellate"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Events emitted to the frontend viewer.
const (
	EventParts  = "viewer:parts"
	EventFitAll = "viewer:fit-all"
)

// scratchName is the document Evaluate creates when none is open.
const scratchName = "untitled.dcad"

// viewer forwards parts to the frontend as Wails events. Until startup
// attaches a Wails context it only records the last parts.
type viewer struct {
	mu    sync.Mutex
	ctx   context.Context
	parts []tessellate.Part
	fits  int
}

func (v *viewer) attach(ctx context.Context) {
	v.mu.Lock()
	v.ctx = ctx
	v.mu.Unlock()
}

func (v *viewer) SetParts(parts []tessellate.Part) {
	if parts == nil {
		parts = []tessellate.Part{}
	}
	v.mu.Lock()
	v.parts = parts
	ctx := v.ctx
	v.mu.Unlock()
	if ctx != nil {
		runtime.EventsEmit(ctx, EventParts, parts)
	}
}

func (v *viewer) FitAll() {
	v.mu.Lock()
	v.fits++
	ctx := v.ctx
	v.mu.Unlock()
	if ctx != nil {
		runtime.EventsEmit(ctx, EventFitAll)
	}
}

func (v *viewer) current() []tessellate.Part {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]tessellate.Part{}, v.parts...)
}

// App is the Wails backend. It exposes methods to the frontend via bindings.
// Every binding runs on the app's loop, which owns the session.
type App struct {
	ctx       context.Context
	loop      *loop.Loop
	session   *document.Session
	viewer    *viewer
	statePath string
}

// AppOption configures an App.
type AppOption func(*appConfig)

type appConfig struct {
	kernel    kernel.Kernel
	logger    *slog.Logger
	statePath string
	session   []document.Option
}

// WithKernel selects the geometry kernel. The default is sdfx.
func WithKernel(k kernel.Kernel) AppOption {
	return func(c *appConfig) { c.kernel = k }
}

// WithStatePath persists editor state to path and restores it on startup.
func WithStatePath(path string) AppOption {
	return func(c *appConfig) { c.statePath = path }
}

// WithAppLogger sets the structured logger handed to the session.
func WithAppLogger(l *slog.Logger) AppOption {
	return func(c *appConfig) { c.logger = l }
}

// WithSessionOptions passes extra options to the document session.
func WithSessionOptions(opts ...document.Option) AppOption {
	return func(c *appConfig) { c.session = append(c.session, opts...) }
}

// EvalResult is the document view returned to the frontend.
type EvalResult struct {
	Name        string            `json:"name"`
	Meshes      []tessellate.Part `json:"meshes"`
	Errors      []string          `json:"errors"`
	Suggestions []string          `json:"suggestions"`
	Unsaved     bool              `json:"unsaved"`
}

// NewApp creates a new App with a running loop and the sdfx kernel.
func NewApp(opts ...AppOption) *App {
	cfg := appConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.kernel == nil {
		cfg.kernel = sdfx.New()
	}

	a := &App{
		loop:      loop.New(loop.WithLogger(cfg.logger)),
		viewer:    &viewer{},
		statePath: cfg.statePath,
	}
	sessionOpts := append([]document.Option{
		document.WithLogger(cfg.logger),
		document.WithStatePath(cfg.statePath),
	}, cfg.session...)
	a.session = document.NewSession(cfg.kernel, a.viewer, a.loop, sessionOpts...)
	a.loop.Start(context.Background())
	return a
}

// startup is called by Wails on app startup. The context is saved so the
// viewer can emit runtime events, and the previous editor state is restored.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.viewer.attach(ctx)
	if a.statePath == "" {
		return
	}
	st, err := document.LoadState(a.statePath)
	if err != nil {
		log.Printf("Restore state error: %v", err)
		return
	}
	a.call(func() error {
		a.session.Restore(st)
		return nil
	})
}

// shutdown is called by Wails when the window closes.
func (a *App) shutdown(ctx context.Context) {
	a.call(func() error {
		a.session.Shutdown()
		return nil
	})
	a.loop.Stop()
}

// call runs fn on the loop and logs failures of the loop itself.
func (a *App) call(fn func() error) error {
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.loop.Call(ctx, fn)
	if err != nil {
		log.Printf("Binding error: %v", err)
	}
	return err
}

// view snapshots d for the frontend. Slices are never nil so they
// serialize as [].
func (a *App) view(d *document.Document) EvalResult {
	res := EvalResult{
		Meshes:      a.viewer.current(),
		Errors:      []string{},
		Suggestions: []string{},
	}
	if d == nil {
		return res
	}
	res.Name = d.Name
	res.Unsaved = d.Unsaved
	res.Errors = append(res.Errors, d.Errors...)
	res.Suggestions = append(res.Suggestions, d.Suggestions...)
	return res
}

// Evaluate replaces the active document's source and returns the parts it
// displays. This is the primary binding called by the frontend editor.
func (a *App) Evaluate(source string) EvalResult {
	var res EvalResult
	err := a.call(func() error {
		if a.session.Active() == nil {
			if _, err := a.session.NewDocument(scratchName); err != nil {
				return err
			}
		}
		if err := a.session.SetSource(source); err != nil {
			return err
		}
		// Redraw now so the result carries meshes; the debounced redraw
		// still reaches the viewer event.
		a.session.Redraw()
		res = a.view(a.session.Active())
		return nil
	})
	if err != nil {
		res = a.view(nil)
		res.Errors = append(res.Errors, err.Error())
	}
	return res
}

// Open opens a document and makes it active.
func (a *App) Open(path string) EvalResult {
	res := a.view(nil)
	a.call(func() error {
		d, err := a.session.Open(path)
		if err != nil {
			log.Printf("Open error: %v", err)
		}
		a.session.Redraw()
		res = a.view(d)
		return nil
	})
	return res
}

// New creates an empty document at path and makes it active.
func (a *App) New(path string) EvalResult {
	var res EvalResult
	err := a.call(func() error {
		d, err := a.session.NewDocument(path)
		if err != nil {
			return err
		}
		res = a.view(d)
		return nil
	})
	if err != nil {
		res = a.view(nil)
		res.Errors = append(res.Errors, err.Error())
	}
	return res
}

// Save writes the active document.
func (a *App) Save() error {
	return a.call(a.session.Save)
}

// SaveAs writes the active document to path.
func (a *App) SaveAs(path string) error {
	return a.call(func() error { return a.session.SaveAs(path) })
}

// SetCursor records the editor cursor and returns completions for it.
func (a *App) SetCursor(line, column int) []string {
	out := []string{}
	a.call(func() error {
		if err := a.session.SetCursor(editor.Cursor{Line: line, Column: column}); err != nil {
			return err
		}
		out = append(out, a.session.Active().Suggestions...)
		return nil
	})
	return out
}

// Diagnostics returns the errors of the active document.
func (a *App) Diagnostics() []string {
	out := []string{}
	a.call(func() error {
		if d := a.session.Active(); d != nil {
			out = append(out, d.Errors...)
		}
		return nil
	})
	return out
}

// Documents lists the open documents.
func (a *App) Documents() []EvalResult {
	out := []EvalResult{}
	a.call(func() error {
		for _, d := range a.session.Documents() {
			out = append(out, a.view(d))
		}
		return nil
	})
	return out
}

// Activate switches to the open document named name.
func (a *App) Activate(name string) EvalResult {
	res := a.view(nil)
	a.call(func() error {
		for _, d := range a.session.Documents() {
			if d.Name == name {
				a.session.Activate(d)
				a.session.Redraw()
			}
		}
		res = a.view(a.session.Active())
		return nil
	})
	return res
}

// Export writes the displayed parts to an STL file with default settings.
func (a *App) Export(path string) error {
	return a.ExportWith(document.DefaultExportOptions(path))
}

// ExportWith writes the displayed parts with explicit mesh settings.
func (a *App) ExportWith(opts document.ExportOptions) error {
	return a.call(func() error { return a.session.Export(opts) })
}
