package rss

import (
	"bytes"
	"encoding/xml"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/identity"
	"github.com/fedragon/feedme/internal/models"
	"github.com/fedragon/feedme/internal/webroot"
)

const header = `<?xml version="1.0" encoding="utf-8"?>`

var guid = identity.Identity{
	0x84, 0xB1, 0x0E, 0x49, 0x7D, 0x33, 0x20, 0x49,
	0x3E, 0xD1, 0xA3, 0x53, 0xA1, 0xCE, 0x48, 0x8C,
}

func fixture(t *testing.T, files ...string) (string, *webroot.Resolver) {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r, err := webroot.New(root, "https://ex.org")
	if err != nil {
		t.Fatal(err)
	}
	return root, r
}

func encode(t *testing.T, feed *Feed, indent bool) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, feed, EncodeOptions{Indent: indent}); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestEndToEnd(t *testing.T) {
	root, r := fixture(t, "a.mp4")
	b := &Builder{Resolver: r, MediaDir: root}

	playlist := models.Playlist{Title: "Show"}
	entries := []models.Entry{{
		File:     "a.mp4",
		Size:     123,
		Type:     "video/mp4",
		Title:    "Ep1",
		UUID:     guid,
		Duration: 60,
		Date:     1700000000,
	}}

	feed, err := b.Build(playlist, entries)
	if err != nil {
		t.Fatal(err)
	}

	expected := header +
		`<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" xmlns:content="http://purl.org/rss/1.0/modules/content/">` +
		`<channel><title>Show</title>` +
		`<item><title>Ep1</title>` +
		`<enclosure length="123" type="video/mp4" url="https://ex.org/a.mp4"/>` +
		`<guid>84B10E49-7D33-2049-3ED1-A353A1CE488C</guid>` +
		`<pubDate>Tue, 14 Nov 2023 22:13:20 +0000</pubDate>` +
		`<itunes:duration>60</itunes:duration>` +
		`</item></channel></rss>`

	if got := encode(t, feed, false); got != expected {
		t.Errorf("Expected\n%v\nbut got\n%v\ninstead", expected, got)
	}
}

func TestAllOptionalFields(t *testing.T) {
	root, r := fixture(t, "show/ep 1.mp4", "show/cover.jpg")
	b := &Builder{Resolver: r, MediaDir: filepath.Join(root, "show")}
	episode := uint64(7)

	playlist := models.Playlist{
		Title:       "Show",
		Description: models.String("About <things> & stuff"),
		Author:      models.String("Author"),
		Thumbnail:   models.String("cover.jpg"),
		URL:         models.String("https://ex.org/show"),
		Type:        models.String(models.TypeSerial),
	}
	entries := []models.Entry{{
		File:        "ep 1.mp4",
		Size:        42,
		Type:        "video/mp4",
		Title:       "Ep \"1\"",
		Description: models.String("First"),
		Episode:     &episode,
		UUID:        guid,
		Duration:    3600,
		Date:        0,
	}}

	feed, err := b.Build(playlist, entries)
	if err != nil {
		t.Fatal(err)
	}

	expected := header +
		`<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" xmlns:content="http://purl.org/rss/1.0/modules/content/">` +
		`<channel><title>Show</title>` +
		`<itunes:type>serial</itunes:type>` +
		`<link>https://ex.org/show</link>` +
		`<itunes:author>Author</itunes:author>` +
		`<description>About &lt;things&gt; &amp; stuff</description>` +
		`<itunes:image href="https://ex.org/show/cover.jpg"/>` +
		`<item><title>Ep &#34;1&#34;</title>` +
		`<itunes:episode>7</itunes:episode>` +
		`<description>First</description>` +
		`<enclosure length="42" type="video/mp4" url="https://ex.org/show/ep%201.mp4"/>` +
		`<guid>84B10E49-7D33-2049-3ED1-A353A1CE488C</guid>` +
		`<pubDate>Thu, 01 Jan 1970 00:00:00 +0000</pubDate>` +
		`<itunes:duration>3600</itunes:duration>` +
		`</item></channel></rss>`

	if got := encode(t, feed, false); got != expected {
		t.Errorf("Expected\n%v\nbut got\n%v\ninstead", expected, got)
	}
}

func TestAbsentOptionalFieldsAreOmitted(t *testing.T) {
	root, r := fixture(t, "a.mp4")
	b := &Builder{Resolver: r, MediaDir: root}

	feed, err := b.Build(models.Playlist{Title: "Show"}, []models.Entry{{
		File: "a.mp4", Size: 1, Type: "video/mp4", Title: "A", UUID: guid, Date: 1,
	}})
	if err != nil {
		t.Fatal(err)
	}
	got := encode(t, feed, true)

	for _, tag := range []string{"itunes:type", "link", "itunes:author", "description", "itunes:image", "itunes:episode"} {
		if strings.Contains(got, "<"+tag) {
			t.Errorf("did not expect element %s in\n%s", tag, got)
		}
	}
}

func TestItemOrderFollowsEntries(t *testing.T) {
	root, r := fixture(t, "z.mp4", "a.mp4", "m.mp4")
	b := &Builder{Resolver: r, MediaDir: root}

	var entries []models.Entry
	for i, name := range []string{"z", "a", "m"} {
		entries = append(entries, models.Entry{
			File: name + ".mp4", Size: 1, Type: "video/mp4", Title: name, UUID: guid,
			// descending dates: items must not be re-sorted
			Date: uint64(1700000000 - i*1000),
		})
	}

	feed, err := b.Build(models.Playlist{Title: "Show"}, entries)
	if err != nil {
		t.Fatal(err)
	}

	var titles []string
	for _, item := range feed.Channel.Items {
		titles = append(titles, item.Title)
	}
	if strings.Join(titles, "") != "zam" {
		t.Errorf("Expected order %v but got %v instead", "zam", titles)
	}
}

func TestIndentedOutputIsWellFormed(t *testing.T) {
	root, r := fixture(t, "a.mp4", "b.mp4")
	b := &Builder{Resolver: r, MediaDir: root}

	feed, err := b.Build(models.Playlist{Title: "Show", Author: models.String("Me")}, []models.Entry{
		{File: "a.mp4", Size: 1, Type: "video/mp4", Title: "A", UUID: guid, Date: 1},
		{File: "b.mp4", Size: 2, Type: "video/mp4", Title: "B", UUID: guid, Date: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := encode(t, feed, true)

	if !strings.Contains(got, "\n    <item>\n      <title>A</title>") {
		t.Errorf("expected nested indentation in\n%s", got)
	}

	var parsed struct {
		XMLName xml.Name `xml:"rss"`
		Version string   `xml:"version,attr"`
		Channel struct {
			Title string `xml:"title"`
			Items []struct {
				Title     string `xml:"title"`
				Enclosure struct {
					URL    string `xml:"url,attr"`
					Length string `xml:"length,attr"`
				} `xml:"enclosure"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("output is not well formed: %v\n%s", err, got)
	}
	if parsed.Version != "2.0" || len(parsed.Channel.Items) != 2 || parsed.Channel.Items[1].Enclosure.URL != "https://ex.org/b.mp4" {
		t.Errorf("unexpected document %+v", parsed)
	}
	if strings.Count(got, "xmlns:itunes=") != 1 || strings.Count(got, "xmlns:content=") != 1 {
		t.Errorf("expected namespaces to be declared exactly once in\n%s", got)
	}
}

func TestBuildFailures(t *testing.T) {
	root, r := fixture(t, "a.mp4")
	outside := filepath.Join(t.TempDir(), "outside.mp4")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		playlist models.Playlist
		entry    models.Entry
		expected errs.Kind
	}{
		{
			name:     "entry outside the webroot",
			playlist: models.Playlist{Title: "Show"},
			entry:    models.Entry{File: outside, Type: "video/mp4", Title: "A", UUID: guid},
			expected: errs.Security,
		},
		{
			name:     "thumbnail outside the webroot",
			playlist: models.Playlist{Title: "Show", Thumbnail: models.String(outside)},
			entry:    models.Entry{File: "a.mp4", Type: "video/mp4", Title: "A", UUID: guid},
			expected: errs.Security,
		},
		{
			name:     "missing media file",
			playlist: models.Playlist{Title: "Show"},
			entry:    models.Entry{File: "missing.mp4", Type: "video/mp4", Title: "A", UUID: guid},
			expected: errs.IO,
		},
		{
			name:     "date out of range",
			playlist: models.Playlist{Title: "Show"},
			entry:    models.Entry{File: "a.mp4", Type: "video/mp4", Title: "A", UUID: guid, Date: math.MaxUint64},
			expected: errs.Range,
		},
	}

	for _, c := range cases {
		b := &Builder{Resolver: r, MediaDir: root}
		feed, err := b.Build(c.playlist, []models.Entry{c.entry})
		if !errors.Is(err, c.expected) {
			t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.expected, err)
		}
		if feed != nil {
			t.Errorf("%v\n\texpected no partial feed", c.name)
		}
	}
}

func TestRemoteThumbnail(t *testing.T) {
	root, r := fixture(t)
	b := &Builder{Resolver: r, MediaDir: root}

	feed, err := b.Build(models.Playlist{Title: "Show", Thumbnail: models.String("https://img.example/cover.jpg")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := encode(t, feed, false); !strings.Contains(got, `<itunes:image href="https://img.example/cover.jpg"/>`) {
		t.Errorf("expected remote thumbnail to be used as-is in\n%s", got)
	}
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	feed := &Feed{Channel: Channel{Title: "bad \xff title"}}

	var buf bytes.Buffer
	if err := Encode(&buf, feed, EncodeOptions{}); !errors.Is(err, errs.Encoding) {
		t.Errorf("Expected %v but got %v instead", errs.Encoding, err)
	}
}

func TestEncodeRejectsForbiddenCharacters(t *testing.T) {
	cases := []struct {
		name  string
		title string
		kind  errs.Kind
	}{
		{name: "control character", title: "bell \x07 title", kind: errs.Encoding},
		{name: "nul", title: "nul \x00 title", kind: errs.Encoding},
		{name: "noncharacter", title: "odd \uFFFE title", kind: errs.Encoding},
		{name: "whitespace controls", title: "tab\tcr\rlf\n title"},
		{name: "astral plane", title: "emoji \U0001F600 title"},
	}

	for _, c := range cases {
		feed := &Feed{Channel: Channel{Title: c.title}}

		var buf bytes.Buffer
		err := Encode(&buf, feed, EncodeOptions{})
		if c.kind == "" {
			if err != nil {
				t.Errorf("%v\n\tExpected no error but got %v instead", c.name, err)
			}
			continue
		}
		if !errors.Is(err, c.kind) {
			t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.kind, err)
		}
	}
}

func TestFormatDate(t *testing.T) {
	cases := []struct {
		name      string
		timestamp uint64
		expected  string
		kind      errs.Kind
	}{
		{name: "epoch", timestamp: 0, expected: "Thu, 01 Jan 1970 00:00:00 +0000"},
		{name: "example", timestamp: 1700000000, expected: "Tue, 14 Nov 2023 22:13:20 +0000"},
		{name: "last four digit year", timestamp: 253402300799, expected: "Fri, 31 Dec 9999 23:59:59 +0000"},
		{name: "year ten thousand", timestamp: 253402300800, kind: errs.Range},
		{name: "beyond int64", timestamp: math.MaxUint64, kind: errs.Range},
	}

	for _, c := range cases {
		got, err := FormatDate(c.timestamp)
		if c.kind != "" {
			if !errors.Is(err, c.kind) {
				t.Errorf("%v\n\tExpected %v but got %v instead", c.name, c.kind, err)
			}
			continue
		}
		if err != nil || got != c.expected {
			t.Errorf("%v\n\tExpected %v but got %v (%v) instead", c.name, c.expected, got, err)
		}
	}
}

func TestWriterUnbalanced(t *testing.T) {
	var buf bytes.Buffer

	x := NewWriter(&buf, "")
	x.Start("rss")
	if err := x.Flush(); !errors.Is(err, errs.Format) {
		t.Errorf("Expected %v but got %v instead", errs.Format, err)
	}

	x = NewWriter(&buf, "")
	x.End()
	if err := x.Flush(); !errors.Is(err, errs.Format) {
		t.Errorf("Expected %v but got %v instead", errs.Format, err)
	}
}
