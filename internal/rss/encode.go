package rss

import "io"

type EncodeOptions struct {
	// Indent nests elements two spaces per level. Consumers do not need it.
	Indent bool
}

// Encode writes feed as a complete XML document.
func Encode(w io.Writer, feed *Feed, opts EncodeOptions) error {
	indent := ""
	if opts.Indent {
		indent = "  "
	}

	x := NewWriter(w, indent)
	x.Header()
	feed.write(x)
	if opts.Indent {
		x.raw("\n")
	}
	return x.Flush()
}
