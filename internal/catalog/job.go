package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/assets"
	"github.com/docrender/docrender/internal/typeset"
)

// InputPath is the reserved path of the serialized request payload.
// It shadows any real asset stored at the same path.
const InputPath = "input.json"

// Job is one render of one template against one payload.
// It borrows the catalog and implements typeset.World.
type Job struct {
	catalog *Catalog
	main    assets.Template
	input   []byte
	clock   func() time.Time
}

// JobOption configures a Job
type JobOption func(*Job)

// WithClock overrides the time source used by Today
func WithClock(clock func() time.Time) JobOption {
	return func(j *Job) {
		j.clock = clock
	}
}

var _ typeset.World = (*Job)(nil)

// Resolve builds a job for the first template named name.
// The payload is serialized to JSON and bound at InputPath.
func (c *Catalog) Resolve(name string, payload any, opts ...JobOption) (*Job, error) {
	i, ok := c.byName[name]
	if !ok {
		return nil, apperr.TemplateNotFound(name)
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.New(apperr.KindInputSerialization, "catalog.resolve", name, err)
	}

	job := &Job{
		catalog: c,
		main:    c.templates[i],
		input:   input,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

// Name returns the requested template name
func (j *Job) Name() string {
	return j.main.Name()
}

// Input returns the serialized payload
func (j *Job) Input() []byte {
	return j.input
}

// Library returns the shared predeclared names
func (j *Job) Library() starlark.StringDict {
	return j.catalog.library
}

// Book returns the catalog's font book
func (j *Job) Book() *typeset.FontBook {
	return j.catalog.book
}

// Main returns the path of the resolved template
func (j *Job) Main() string {
	return j.main.Path
}

// Source returns the text of the template at path
func (j *Job) Source(path string) (string, error) {
	if path == j.main.Path {
		return j.main.Text, nil
	}
	i, ok := j.catalog.byPath[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", typeset.ErrFileNotFound, path)
	}
	return j.catalog.templates[i].Text, nil
}

// File returns the payload for InputPath, otherwise the catalog asset at path
func (j *Job) File(path string) ([]byte, error) {
	if path == InputPath {
		return j.input, nil
	}
	data, ok := j.catalog.assets[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", typeset.ErrFileNotFound, path)
	}
	return data, nil
}

// Font returns the catalog face at index
func (j *Job) Font(index int) (typeset.Font, bool) {
	if index < 0 || index >= len(j.catalog.fonts) {
		return typeset.Font{}, false
	}
	return j.catalog.fonts[index], true
}

// Today returns the current UTC time shifted by offset hours
func (j *Job) Today(offset *int) (time.Time, bool) {
	now := j.clock().UTC()
	if offset != nil {
		now = now.Add(time.Duration(*offset) * time.Hour)
	}
	return now, true
}

// Now returns the job clock's current time
func (j *Job) Now() time.Time {
	return j.clock()
}
