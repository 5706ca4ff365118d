package typeset

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkjson"
	"go.starlark.net/starlarkstruct"
)

// Default sizes in points
const (
	TitleSize   = 24.0
	TextSize    = 11.0
	SpacerSize  = 8.0
	maxTextSize = 96.0
)

var headingSizes = map[int]float64{1: 18, 2: 14, 3: 12}

// NewLibrary returns the frozen set of names predeclared in every document program
func NewLibrary() starlark.StringDict {
	lib := starlark.StringDict{
		"json":       starlarkjson.Module,
		"struct":     starlark.NewBuiltin("struct", starlarkstruct.Make),
		"read":       starlark.NewBuiltin("read", builtinRead),
		"read_bytes": starlark.NewBuiltin("read_bytes", builtinReadBytes),
		"today":      starlark.NewBuiltin("today", builtinToday),
		"title":      starlark.NewBuiltin("title", builtinTitle),
		"heading":    starlark.NewBuiltin("heading", builtinHeading),
		"text":       starlark.NewBuiltin("text", builtinText),
		"bullet":     starlark.NewBuiltin("bullet", builtinBullet),
		"spacer":     starlark.NewBuiltin("spacer", builtinSpacer),
		"page":       starlark.NewBuiltin("page", builtinPage),
		"font":       starlark.NewBuiltin("font", builtinFont),
		"warn":       starlark.NewBuiltin("warn", builtinWarn),
	}
	lib.Freeze()
	return lib
}

func textOf(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

func builtinRead(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	data, err := readFile(thread, fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(data), nil
}

func builtinReadBytes(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	data, err := readFile(thread, fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.Bytes(data), nil
}

func readFile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) ([]byte, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	p, ok := cleanPath(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", fn.Name(), ErrFileNotFound, name)
	}
	data, err := c.world.File(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return data, nil
}

func builtinToday(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var offsetArg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "offset?", &offsetArg); err != nil {
		return nil, err
	}

	var offset *int
	if offsetArg != starlark.None {
		hours, err := starlark.AsInt32(offsetArg)
		if err != nil {
			return nil, fmt.Errorf("%s: offset: %w", fn.Name(), err)
		}
		offset = &hours
	}

	now, ok := c.world.Today(offset)
	if !ok {
		return starlark.None, nil
	}
	return dateValue(now), nil
}

func dateValue(t time.Time) starlark.Value {
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"year":    starlark.MakeInt(t.Year()),
		"month":   starlark.MakeInt(int(t.Month())),
		"day":     starlark.MakeInt(t.Day()),
		"hour":    starlark.MakeInt(t.Hour()),
		"minute":  starlark.MakeInt(t.Minute()),
		"second":  starlark.MakeInt(t.Second()),
		"weekday": starlark.String(t.Weekday().String()),
		"iso":     starlark.String(t.Format(time.RFC3339)),
	})
}

func builtinTitle(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var body starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &body); err != nil {
		return nil, err
	}
	s := textOf(body)
	if c.out.doc.Title == "" {
		c.out.doc.Title = s
	}
	c.out.add(Block{Kind: BlockTitle, Text: s, Size: TitleSize})
	return starlark.None, nil
}

func builtinHeading(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var body starlark.Value
	level := 1
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "body", &body, "level?", &level); err != nil {
		return nil, err
	}
	size, ok := headingSizes[level]
	if !ok {
		return nil, fmt.Errorf("%s: level must be between 1 and 3, got %d", fn.Name(), level)
	}
	c.out.add(Block{Kind: BlockHeading, Text: textOf(body), Level: level, Size: size})
	return starlark.None, nil
}

func builtinText(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var body starlark.Value
	size := TextSize
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "body", &body, "size?", &size); err != nil {
		return nil, err
	}
	if size <= 0 || size > maxTextSize {
		return nil, fmt.Errorf("%s: size must be in (0, %g], got %g", fn.Name(), maxTextSize, size)
	}
	c.out.add(Block{Kind: BlockText, Text: textOf(body), Size: size})
	return starlark.None, nil
}

func builtinBullet(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var body starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &body); err != nil {
		return nil, err
	}
	c.out.add(Block{Kind: BlockBullet, Text: textOf(body), Size: TextSize})
	return starlark.None, nil
}

func builtinSpacer(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	height := SpacerSize
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "height?", &height); err != nil {
		return nil, err
	}
	if height < 0 {
		return nil, fmt.Errorf("%s: height must not be negative, got %g", fn.Name(), height)
	}
	c.out.add(Block{Kind: BlockSpacer, Height: height})
	return starlark.None, nil
}

func builtinPage(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	c.out.newPage()
	return starlark.None, nil
}

// font switches the face used by subsequent blocks. An unknown family is a
// warning and the current face is kept.
func builtinFont(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var family string
	style := ""
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "family", &family, "style?", &style); err != nil {
		return nil, err
	}

	book := c.world.Book()
	var (
		index int
		ok    bool
	)
	if style != "" {
		index, ok = book.SelectStyle(family, style)
	} else {
		index, ok = book.Select(family)
	}
	if ok {
		var f Font
		if f, ok = c.world.Font(index); ok {
			c.out.setFont(index, f)
			return starlark.True, nil
		}
	}

	c.warn(thread.CallFrame(1).Pos, "unknown font family %q, keeping current font", family)
	return starlark.False, nil
}

func builtinWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := compilationOf(thread, fn)
	if err != nil {
		return nil, err
	}
	var msg starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	c.warn(thread.CallFrame(1).Pos, "%s", textOf(msg))
	return starlark.None, nil
}
