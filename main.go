package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/gpu/soft"
	"github.com/ironsmile/spinning-triangle-go/gpu/vulkan"
	"github.com/ironsmile/spinning-triangle-go/mesh"
	"github.com/ironsmile/spinning-triangle-go/renderer"
	"github.com/ironsmile/spinning-triangle-go/shaders"
	"github.com/ironsmile/spinning-triangle-go/window"
	"github.com/ironsmile/spinning-triangle-go/window/events"
)

const (
	windowTitle  = "Spinning Triangle"
	windowWidth  = 1280
	windowHeight = 720
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()

	flag.BoolVar(&args.debug, "debug", false, "Enable GPU validation and the live object report")
	flag.BoolVar(&args.dev, "dev", false, "Compile shaders from source and reload them when they change")
	flag.StringVar(&args.backend, "backend", vulkan.Name, "GPU backend, one of: "+vulkan.Name+", "+soft.Name)
	flag.IntVar(&args.frames, "frames", 0, "Stop after this many rendered frames, 0 runs until the window is closed")
	flag.StringVar(&args.mesh, "mesh", "", "Wavefront OBJ file with the mesh to draw instead of the triangle")
	flag.StringVar(&args.assets, "assets", shaders.DefaultDir, "Directory with the shader sources and bytecode")
}

var args struct {
	debug   bool
	dev     bool
	backend string
	frames  int
	mesh    string
	assets  string
}

func main() {
	flag.Parse()

	if args.debug {
		gpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	app := &SpinningTriangleApp{
		desc: events.Desc{
			Width:  windowWidth,
			Height: windowHeight,
		},
		library: shaders.NewLibrary(args.assets, args.dev),
	}
	if err := app.Run(); err != nil {
		log.Fatalf("ERROR: %s", err)
	}
}

// display is the window the application presents to: the glfw window or,
// with the soft backend, an offscreen surface.
type display interface {
	renderer.Window

	Update()
	Wait()
	Empty() bool
	Front() events.Event
	Pop()
	SurfaceHandle() any
	Destroy()
}

// SpinningTriangleApp draws a rotating triangle until its window is closed.
type SpinningTriangleApp struct {
	desc    events.Desc
	display display
	library *shaders.Library
	watcher *shaders.Watcher

	renderer *renderer.Renderer
}

// Run opens the window, renders until it is closed and cleans up.
func (a *SpinningTriangleApp) Run() error {
	if err := a.initDisplay(); err != nil {
		return fmt.Errorf("initDisplay: %w", err)
	}
	defer a.display.Destroy()

	if err := a.initRenderer(); err != nil {
		return fmt.Errorf("initRenderer: %w", err)
	}

	if args.dev {
		w, err := a.library.Watch()
		if err != nil {
			log.Printf("shader hot reload disabled: %s", err)
		} else {
			a.watcher = w
			defer a.watcher.Close()
		}
	}

	loopErr := a.mainLoop()
	if err := a.renderer.Close(); err != nil {
		return errors.Join(loopErr, fmt.Errorf("closing renderer: %w", err))
	}
	if loopErr != nil {
		return fmt.Errorf("mainLoop: %w", loopErr)
	}
	return nil
}

func (a *SpinningTriangleApp) initDisplay() error {
	if args.backend == soft.Name {
		a.display = newHeadless(a.desc)
		return nil
	}

	w, err := window.New(windowTitle, a.desc)
	if err != nil {
		return err
	}
	a.display = w
	return nil
}

func (a *SpinningTriangleApp) initRenderer() error {
	factory, err := gpu.Open(args.backend, gpu.Options{
		Debug:   args.debug,
		Surface: a.display.SurfaceHandle(),
		AppName: windowTitle,
	})
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", args.backend, err)
	}

	var m *mesh.Mesh
	if args.mesh != "" {
		if m, err = mesh.Load(args.mesh); err != nil {
			factory.Release()
			return err
		}
	}

	a.renderer, err = renderer.New(factory, a.display, a.library, renderer.Options{
		Debug: args.debug,
		Name:  windowTitle,
		Mesh:  m,
	})
	return err
}

// mainLoop drains the window events once per iteration. A resize or a close
// request skips rendering for that iteration. While the window is minimized
// nothing is rendered and the loop blocks until the next event.
func (a *SpinningTriangleApp) mainLoop() error {
	minimized := a.display.Desc().Minimized()
	for {
		if minimized {
			a.display.Wait()
		} else {
			a.display.Update()
		}

		shouldRender := true
		shouldClose := false
		for !a.display.Empty() {
			event := a.display.Front()
			switch event.Type {
			case events.Resize:
				size := events.Desc{Width: event.Resize.Width, Height: event.Resize.Height}
				minimized = size.Minimized()
				err := a.renderer.Resize(size.Width, size.Height)
				if err != nil {
					return fmt.Errorf("resize: %w", err)
				}
				shouldRender = false
			case events.Close:
				shouldRender = false
				shouldClose = true
			}
			a.display.Pop()
		}
		if shouldClose {
			return nil
		}

		a.reloadShaders()

		if !shouldRender || minimized {
			continue
		}
		if err := a.renderer.Render(); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		if args.frames > 0 && a.renderer.Frames() >= args.frames {
			log.Printf("rendered %d frames", a.renderer.Frames())
			return nil
		}
	}
}

// reloadShaders rebuilds the pipeline when the shader watcher reported an
// edit. Broken shaders are reported and the old pipeline is kept.
func (a *SpinningTriangleApp) reloadShaders() {
	if a.watcher == nil {
		return
	}

	select {
	case name := <-a.watcher.Changes():
		log.Printf("shader %s changed, reloading", name)
	default:
		return
	}

	vs, ps, err := a.library.LoadPipeline()
	if err != nil {
		log.Printf("shader reload failed: %s", err)
		return
	}
	if err := a.renderer.ReloadShaders(vs, ps); err != nil {
		log.Printf("pipeline rebuild failed: %s", err)
	}
}
