package main

import (
	"embed"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/chazu/declcad/pkg/document"
	"github.com/chazu/declcad/pkg/kernel"
	"github.com/chazu/declcad/pkg/kernel/manifold"
	"github.com/chazu/declcad/pkg/kernel/sdfx"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	var (
		kernelName = flag.String("kernel", "sdfx", "geometry kernel: sdfx or manifold")
		statePath  = flag.String("state", document.DefaultStatePath, "editor state file")
		debug      = flag.Bool("debug", false, "log debug messages")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	k, err := newKernel(*kernelName)
	if err != nil {
		log.Fatalf("kernel: %v", err)
	}
	logger.Info("kernel selected", "kernel", fmt.Sprintf("%T", k))

	app := NewApp(WithKernel(k), WithStatePath(*statePath), WithAppLogger(logger))
	for _, path := range flag.Args() {
		app.Open(path)
	}

	err = wails.Run(&options.App{
		Title:  "declcad",
		Width:  1280,
		Height: 800,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Fatalf("wails: %v", err)
	}
}

func newKernel(name string) (kernel.Kernel, error) {
	switch name {
	case "manifold":
		if !manifold.Available() {
			log.Printf("%v; using sdfx", manifold.ErrUnavailable)
			return sdfx.New(), nil
		}
		return manifold.New()
	case "sdfx":
		return sdfx.New(), nil
	}
	return nil, fmt.Errorf("unknown kernel %q", name)
}
