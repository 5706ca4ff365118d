package typeset

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Options tunes a single compile
type Options struct {
	// MaxSteps caps the abstract execution steps of each program thread; 0 means unlimited
	MaxSteps uint64
	// Print receives output of the Starlark print builtin; nil discards it
	Print func(msg string)
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

const localKey = "typeset.compilation"

// Compile runs the world's main program and returns the document it produced.
// Warnings are returned on success and failure alike. A failing program yields
// a *CompileError; a cancelled ctx yields ctx.Err().
func Compile(ctx context.Context, world World, opts Options) (*Document, []Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	c := &compilation{
		world:   world,
		opts:    opts,
		out:     newBuilder(),
		modules: make(map[string]*module),
	}
	stop := context.AfterFunc(ctx, func() { c.cancel("context cancelled") })
	defer stop()

	main := world.Main()
	src, err := world.Source(main)
	if err != nil {
		return nil, nil, &CompileError{Diagnostics: []Diagnostic{{
			Severity: SeverityError,
			Path:     main,
			Message:  err.Error(),
		}}}
	}

	c.modules[main] = &module{loading: true}
	_, err = starlark.ExecFileOptions(fileOptions, c.newThread(main), main, src, world.Library())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, c.warnings, ctxErr
	}
	if err != nil {
		diags := append(c.nested, diagnose(err)...)
		return nil, c.warnings, &CompileError{Diagnostics: diags}
	}
	return c.out.document(), c.warnings, nil
}

// compilation is the per-compile state shared by the main thread and load threads
type compilation struct {
	world World
	opts  Options
	out   *builder

	warnings []Diagnostic
	// nested holds diagnostics of failed loads, reported before the outer error
	nested  []Diagnostic
	modules map[string]*module

	mu           sync.Mutex
	threads      []*starlark.Thread
	cancelReason string
}

type module struct {
	globals starlark.StringDict
	err     error
	loading bool
}

func (c *compilation) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Load: c.load,
		Print: func(_ *starlark.Thread, msg string) {
			if c.opts.Print != nil {
				c.opts.Print(msg)
			}
		},
	}
	thread.SetLocal(localKey, c)
	if c.opts.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(c.opts.MaxSteps)
	}

	c.mu.Lock()
	c.threads = append(c.threads, thread)
	if c.cancelReason != "" {
		thread.Cancel(c.cancelReason)
	}
	c.mu.Unlock()
	return thread
}

func (c *compilation) cancel(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelReason == "" {
		c.cancelReason = reason
	}
	for _, t := range c.threads {
		t.Cancel(reason)
	}
}

// load resolves a module by its path relative to the asset root.
// Loads run synchronously on the calling goroutine, so modules needs no lock.
func (c *compilation) load(_ *starlark.Thread, name string) (starlark.StringDict, error) {
	p, ok := cleanPath(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if m, ok := c.modules[p]; ok {
		if m.loading {
			return nil, fmt.Errorf("import cycle through %s", p)
		}
		return m.globals, m.err
	}

	m := &module{loading: true}
	c.modules[p] = m
	src, err := c.world.Source(p)
	if err == nil {
		m.globals, err = starlark.ExecFileOptions(fileOptions, c.newThread(p), p, src, c.world.Library())
		if err != nil {
			c.nested = append(c.nested, diagnose(err)...)
		}
	}
	m.err = err
	m.loading = false
	return m.globals, m.err
}

func (c *compilation) warn(pos syntax.Position, format string, args ...any) {
	c.warnings = append(c.warnings, positioned(SeverityWarning, pos, fmt.Sprintf(format, args...)))
}

// cleanPath normalizes a program-supplied path to a rootless slash path
func cleanPath(p string) (string, bool) {
	p = strings.TrimPrefix(p, "/")
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

func compilationOf(thread *starlark.Thread, fn *starlark.Builtin) (*compilation, error) {
	c, ok := thread.Local(localKey).(*compilation)
	if !ok {
		return nil, fmt.Errorf("%s: called outside a document compile", fn.Name())
	}
	return c, nil
}
