package rss

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fedragon/feedme/internal/errs"
)

// Attr is a name/value pair written on a start tag.
type Attr struct {
	Name  string
	Value string
}

// Writer streams XML elements. It keeps the first error and turns every
// later call into a no-op, so callers check Err (or Flush) once at the end.
type Writer struct {
	w      *bufio.Writer
	indent string
	depth  int
	open   []string
	// an element was just opened and nothing written into it yet
	fresh bool
	err   error
}

func NewWriter(w io.Writer, indent string) *Writer {
	return &Writer{w: bufio.NewWriter(w), indent: indent}
}

func (x *Writer) Err() error {
	return x.err
}

// Header writes the XML declaration.
func (x *Writer) Header() {
	x.raw(`<?xml version="1.0" encoding="utf-8"?>`)
}

// Start opens an element.
func (x *Writer) Start(name string, attrs ...Attr) {
	x.newline()
	x.raw("<" + name)
	x.attrs(attrs)
	x.raw(">")
	x.open = append(x.open, name)
	x.depth++
	x.fresh = true
}

// End closes the innermost open element.
func (x *Writer) End() {
	if len(x.open) == 0 {
		x.fail(errs.New(errs.Format, "unbalanced end element"))
		return
	}
	name := x.open[len(x.open)-1]
	x.open = x.open[:len(x.open)-1]
	x.depth--
	if !x.fresh {
		x.newline()
	}
	x.raw("</" + name + ">")
	x.fresh = false
}

// Empty writes a self-closing element carrying only attributes.
func (x *Writer) Empty(name string, attrs ...Attr) {
	x.newline()
	x.raw("<" + name)
	x.attrs(attrs)
	x.raw("/>")
	x.fresh = false
}

// Text writes <name>value</name>.
func (x *Writer) Text(name, value string) {
	x.newline()
	x.raw("<" + name + ">")
	x.escape(value)
	x.raw("</" + name + ">")
	x.fresh = false
}

// Optional writes <name>value</name> when value is present and nothing
// otherwise.
func (x *Writer) Optional(name string, value *string) {
	if value != nil {
		x.Text(name, *value)
	}
}

// Flush writes buffered output, reporting the first error encountered.
func (x *Writer) Flush() error {
	if x.err == nil && len(x.open) > 0 {
		x.fail(errs.New(errs.Format, "unclosed element %s", x.open[len(x.open)-1]))
	}
	if x.err == nil {
		if err := x.w.Flush(); err != nil {
			x.fail(errs.Wrap(errs.IO, err, "cannot write feed"))
		}
	}
	return x.err
}

func (x *Writer) attrs(attrs []Attr) {
	for _, a := range attrs {
		x.raw(" " + a.Name + `="`)
		x.escape(a.Value)
		x.raw(`"`)
	}
}

func (x *Writer) newline() {
	if x.indent == "" {
		return
	}
	x.raw("\n" + strings.Repeat(x.indent, x.depth))
}

func (x *Writer) escape(s string) {
	if x.err != nil {
		return
	}
	if !utf8.ValidString(s) {
		x.fail(errs.New(errs.Encoding, "text is not valid UTF-8: %q", s))
		return
	}
	if i := strings.IndexFunc(s, forbidden); i >= 0 {
		x.fail(errs.New(errs.Encoding, "character %U cannot appear in XML: %q", []rune(s[i:])[0], s))
		return
	}
	if err := xml.EscapeText(x.w, []byte(s)); err != nil {
		x.fail(errs.Wrap(errs.IO, err, "cannot write feed"))
	}
}

// forbidden reports runes outside the XML 1.0 Char production.
func forbidden(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return false
	case r < 0x20:
		return true
	case r >= 0xD800 && r <= 0xDFFF:
		return true
	case r == 0xFFFE, r == 0xFFFF:
		return true
	}
	return false
}

func (x *Writer) raw(s string) {
	if x.err != nil {
		return
	}
	if _, err := x.w.WriteString(s); err != nil {
		x.fail(errs.Wrap(errs.IO, err, "cannot write feed"))
	}
}

func (x *Writer) fail(err error) {
	if x.err == nil {
		x.err = err
	}
}
