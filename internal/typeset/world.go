// Package typeset compiles document programs into paginated documents.
//
// A document program is a Starlark file. It reads its data through the
// World it is compiled against and emits content through predeclared
// builtins (title, heading, text, ...). The World is read-only; a compile
// never mutates it, so one World may back many concurrent compiles.
package typeset

import (
	"errors"
	"time"

	"go.starlark.net/starlark"
)

// ErrFileNotFound is returned by World lookups that miss
var ErrFileNotFound = errors.New("file not found")

// World is the environment a document program is compiled against
type World interface {
	// Library returns the predeclared names available to every program
	Library() starlark.StringDict
	// Book returns the font book over the world's fonts
	Book() *FontBook
	// Main returns the path of the entry program
	Main() string
	// Source returns the text of the program at path
	Source(path string) (string, error)
	// File returns the bytes of the file at path
	File(path string) ([]byte, error)
	// Font returns the face at index
	Font(index int) (Font, bool)
	// Today returns the current date, shifted by offset hours when offset is non-nil
	Today(offset *int) (time.Time, bool)
}
