// Package webroot turns local file paths into public URLs. It is the
// boundary that keeps a feed from ever referencing a file outside the
// directory served at the base URL.
package webroot

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/go-homedir"

	"github.com/fedragon/feedme/internal/errs"
)

type Resolver struct {
	root    string
	baseURL string
}

// New canonicalises webroot once; it must exist.
func New(webroot, baseURL string) (*Resolver, error) {
	expanded, err := homedir.Expand(webroot)
	if err != nil {
		return nil, errs.Wrap(errs.Config, err, "invalid webroot %s", webroot)
	}
	root, err := canonicalize(expanded)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Root is the canonical webroot.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the absolute URL under which path is served.
func (r *Resolver) Resolve(path string) (string, error) {
	canonical, err := canonicalize(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(r.root, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", errs.New(errs.Security, "path escapes webroot: %s", canonical)
	}
	if rel == "." {
		return "", errs.New(errs.Security, "path is the webroot itself: %s", canonical)
	}

	components := strings.Split(rel, string(filepath.Separator))
	escaped := make([]string, 0, len(components))
	for _, c := range components {
		switch c {
		case "", ".", "..":
			return "", errs.New(errs.Security, "unexpected path component %q in %s", c, canonical)
		}
		if !utf8.ValidString(c) {
			return "", errs.New(errs.Encoding, "path is not valid UTF-8: %q", canonical)
		}
		escaped = append(escaped, escape(c))
	}

	return r.baseURL + "/" + strings.Join(escaped, "/"), nil
}

// escape percent-encodes every byte outside the RFC 3986 unreserved set.
func escape(component string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(component))
	for i := 0; i < len(component); i++ {
		c := component[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '_' || c == '.' || c == '~'
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.Wrap(errs.IO, err, "cannot resolve %s", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.Wrap(errs.IO, err, "%s does not exist", path)
		}
		return "", errs.Wrap(errs.IO, err, "cannot resolve %s", path)
	}
	return resolved, nil
}
