// Package shaders provides the SPIR-V bytecode of the triangle pipeline.
//
// The WGSL sources are embedded into the binary. In development mode they are
// compiled with naga on every load, preferring sources found on disk, and the
// result is persisted next to them. In production mode the persisted bytecode
// is loaded as is.
package shaders

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gogpu/naga"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// Names of the shaders of the triangle pipeline.
const (
	Vertex = "triangle.vert"
	Pixel  = "triangle.frag"
)

// EntryPoint is the entry point function of every shader.
const EntryPoint = "main"

// DefaultDir is where shader sources are looked up and bytecode persisted,
// relative to the working directory.
const DefaultDir = "assets"

//go:embed triangle.vert.wgsl triangle.frag.wgsl
var sources embed.FS

// Source returns the embedded WGSL source of the named shader.
func Source(name string) (string, error) {
	src, err := sources.ReadFile(name + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("unknown shader %q: %w", name, err)
	}
	return string(src), nil
}

// CompileError is returned when a shader fails to compile. Diagnostic is the
// compiler output.
type CompileError struct {
	Name       string
	Diagnostic string
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling shader %s: %s", e.Name, e.Diagnostic)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Compile translates WGSL source into SPIR-V.
func Compile(name, source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, &CompileError{Name: name, Diagnostic: err.Error(), Err: err}
	}
	return spirv, nil
}

// Library loads shader bytecode.
type Library struct {
	// Dir holds the WGSL overrides and the persisted SPIR-V files.
	Dir string

	// Dev selects development mode.
	Dev bool
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(dir string, dev bool) *Library {
	if dir == "" {
		dir = DefaultDir
	}
	return &Library{Dir: dir, Dev: dev}
}

func (l *Library) sourcePath(name string) string {
	return filepath.Join(l.Dir, name+".wgsl")
}

func (l *Library) bytecodePath(name string) string {
	return filepath.Join(l.Dir, name+".spv")
}

// Load returns the bytecode of the named shader.
func (l *Library) Load(name string) ([]byte, error) {
	if l.Dev {
		return l.compile(name)
	}

	code, err := os.ReadFile(l.bytecodePath(name))
	if err == nil {
		gpu.Logger().Debug("shader bytecode loaded", "name", name, "size", len(code))
		return code, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading shader bytecode: %w", err)
	}

	gpu.Logger().Info("no persisted shader bytecode, compiling the embedded source", "name", name)
	src, err := Source(name)
	if err != nil {
		return nil, err
	}
	return Compile(name, src)
}

// compile compiles the on-disk source of name, or the embedded one, and
// persists the result.
func (l *Library) compile(name string) ([]byte, error) {
	src, err := os.ReadFile(l.sourcePath(name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		embedded, err := Source(name)
		if err != nil {
			return nil, err
		}
		src = []byte(embedded)
	case err != nil:
		return nil, fmt.Errorf("reading shader source: %w", err)
	}

	code, err := Compile(name, string(src))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating shader directory: %w", err)
	}
	if err := os.WriteFile(l.bytecodePath(name), code, 0o644); err != nil {
		return nil, fmt.Errorf("persisting shader bytecode: %w", err)
	}

	gpu.Logger().Debug("shader compiled", "name", name, "size", len(code))
	return code, nil
}

// LoadPipeline returns the vertex and pixel shader bytecode.
func (l *Library) LoadPipeline() (vs, ps []byte, err error) {
	vs, err = l.Load(Vertex)
	if err != nil {
		return nil, nil, err
	}
	ps, err = l.Load(Pixel)
	if err != nil {
		return nil, nil, err
	}
	return vs, ps, nil
}
