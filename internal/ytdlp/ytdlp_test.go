package ytdlp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
)

const (
	playlistJSON = `{"_type": "playlist", "title": "Show", "description": "About", "uploader": "Someone", "webpage_url": "https://example.org/list", "thumbnails": [{"url": "https://i/1.jpg", "height": 1, "width": 1}]}`
	videoJSON    = `{"_type": "video", "id": "abc123", "ext": "mp4", "title": "Ep1", "description": "First", "duration": 61.0, "upload_date": "20231114", "playlist_index": 3}`
)

func TestParse(t *testing.T) {
	info, err := Parse("Show [PL].info.json", []byte(playlistJSON))
	if err != nil {
		t.Fatal(err)
	}
	if info.Base != "Show [PL]" || info.Playlist == nil || info.Video != nil {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Playlist.Uploader != "Someone" || info.Playlist.WebpageURL != "https://example.org/list" {
		t.Errorf("unexpected playlist %+v", info.Playlist)
	}

	info, err = Parse("dir/Ep1 [abc123].info.json", []byte(videoJSON))
	if err != nil {
		t.Fatal(err)
	}
	if info.Base != "Ep1 [abc123]" || info.Video == nil || info.Playlist != nil {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Video.ID != "abc123" || info.Video.PlaylistIndex != 3 || info.Video.Duration != 61 {
		t.Errorf("unexpected video %+v", info.Video)
	}
}

func TestParseFailures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "unknown type", raw: `{"_type": "channel", "title": "x"}`},
		{name: "missing type", raw: `{"title": "x"}`},
		{name: "not json", raw: `title: x`},
		{name: "playlist without title", raw: `{"_type": "playlist"}`},
		{name: "video without id", raw: `{"_type": "video", "ext": "mp4", "title": "t", "upload_date": "20231114", "playlist_index": 1}`},
		{name: "video with bad date", raw: `{"_type": "video", "id": "a", "ext": "mp4", "title": "t", "upload_date": "2023-11-14", "playlist_index": 1}`},
		{name: "video without index", raw: `{"_type": "video", "id": "a", "ext": "mp4", "title": "t", "upload_date": "20231114"}`},
		{name: "video with index past the slot range", raw: `{"_type": "video", "id": "a", "ext": "mp4", "title": "t", "upload_date": "20231114", "playlist_index": 2147483648}`},
		{name: "video with maximal index", raw: `{"_type": "video", "id": "a", "ext": "mp4", "title": "t", "upload_date": "20231114", "playlist_index": 18446744073709551615}`},
		{name: "video with wrong field type", raw: `{"_type": "video", "id": 12}`},
	}

	for _, c := range cases {
		if _, err := Parse(c.name+InfoSuffix, []byte(c.raw)); !errors.Is(err, errs.Parse) {
			t.Errorf("%v\n\tExpected %v but got %v instead", c.name, errs.Parse, err)
		}
	}
}

func TestVideoDate(t *testing.T) {
	cases := []struct {
		date     string
		expected uint64
	}{
		{date: "19700101", expected: 0},
		{date: "20231114", expected: 1699920000},
		{date: "20000229", expected: 951782400},
	}

	for _, c := range cases {
		v := Video{UploadDate: c.date}
		got, err := v.Date()
		if err != nil || got != c.expected {
			t.Errorf("%v\n\tExpected %v but got %v (%v) instead", c.date, c.expected, got, err)
		}
	}

	v := Video{UploadDate: "19691231"}
	if _, err := v.Date(); !errors.Is(err, errs.Range) {
		t.Errorf("Expected %v but got %v instead", errs.Range, err)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.info.json":       videoJSON,
		"a.info.json":       playlistJSON,
		".hidden.info.json": `broken`,
		"notes.json":        `broken`,
		"b.mp4":             "media",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := Scan(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("Expected %v but got %v instead", 2, len(infos))
	}
	if infos[0].Base != "a" || infos[0].Playlist == nil || infos[1].Base != "b" || infos[1].Video == nil {
		t.Errorf("unexpected order %+v", infos)
	}
}

func TestScanFailsOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.info.json"), []byte(`{"_type": "nope"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Scan(dir, zap.NewNop()); !errors.Is(err, errs.Parse) {
		t.Errorf("Expected %v but got %v instead", errs.Parse, err)
	}
	if _, err := Scan(filepath.Join(dir, "missing"), zap.NewNop()); !errors.Is(err, errs.IO) {
		t.Errorf("Expected %v but got %v instead", errs.IO, err)
	}
}
