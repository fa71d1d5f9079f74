package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/config"
	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/metrics"
)

const (
	playlistInfo = `{"_type": "playlist", "title": "Show", "description": "About", "uploader": "Someone", "webpage_url": "https://example.org/list"}`
	videoInfo    = `{"_type": "video", "id": "abc123", "ext": "mp4", "title": "Ep1", "description": "First", "duration": 60, "upload_date": "20231114", "playlist_index": 1}`
)

func fixture(t *testing.T, backend string) (*Runner, *bytes.Buffer, string) {
	t.Helper()
	root := t.TempDir()
	media := filepath.Join(root, "show")
	files := map[string]string{
		"Show.info.json":       playlistInfo,
		"Show.jpg":             "jpeg",
		"Ep 1 [abc].info.json": videoInfo,
		"Ep 1 [abc].mp4":       "hello world\n",
	}
	if err := os.MkdirAll(media, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(media, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.BaseURL = "https://ex.org/"
	cfg.Webroot = root
	cfg.Store.Backend = backend

	var stdout bytes.Buffer
	return NewRunner(zap.NewNop(), metrics.NoMetrics(), &cfg, media, &stdout), &stdout, media
}

func TestImportAndBuild(t *testing.T) {
	for _, backend := range []string{config.BackendDir, config.BackendBolt} {
		r, stdout, media := fixture(t, backend)

		if err := r.Import(context.Background()); err != nil {
			t.Fatalf("%v: %v", backend, err)
		}
		if err := r.Build(Stdout, false); err != nil {
			t.Fatalf("%v: %v", backend, err)
		}

		feed := stdout.String()
		for _, fragment := range []string{
			`<channel><title>Show</title><link>https://example.org/list</link><itunes:author>Someone</itunes:author><description>About</description><itunes:image href="https://ex.org/show/Show.jpg"/>`,
			`<item><title>Ep1</title><itunes:episode>1</itunes:episode><description>First</description>`,
			`<enclosure length="12" type="video/mp4" url="https://ex.org/show/Ep%201%20%5Babc%5D.mp4"/>`,
			`<pubDate>Tue, 14 Nov 2023 00:00:00 +0000</pubDate><itunes:duration>60</itunes:duration>`,
		} {
			if !strings.Contains(feed, fragment) {
				t.Errorf("%v\n\texpected %s in\n%s", backend, fragment, feed)
			}
		}

		out := filepath.Join(t.TempDir(), "feed.rss")
		if err := r.Build(out, true); err != nil {
			t.Fatalf("%v: %v", backend, err)
		}
		written, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(written, []byte(`<?xml version="1.0" encoding="utf-8"?>`+"\n<rss")) {
			t.Errorf("%v\n\tunexpected file content %s", backend, written)
		}

		_, boltErr := os.Stat(filepath.Join(media, config.DefaultDatabase))
		if (backend == config.BackendBolt) != (boltErr == nil) {
			t.Errorf("%v\n\tunexpected database file state: %v", backend, boltErr)
		}
	}
}

func TestListAndCheck(t *testing.T) {
	r, stdout, media := fixture(t, config.BackendDir)
	if err := r.Import(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := r.List(); err != nil {
		t.Fatal(err)
	}
	if out := stdout.String(); !strings.Contains(out, "Ep1") || !strings.Contains(out, "12 B") || !strings.Contains(out, "1m0s") {
		t.Errorf("unexpected listing\n%s", out)
	}

	stdout.Reset()
	if err := r.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "no problems") {
		t.Errorf("unexpected check output\n%s", stdout.String())
	}

	if err := os.Remove(filepath.Join(media, "Ep 1 [abc].mp4")); err != nil {
		t.Fatal(err)
	}
	stdout.Reset()
	if err := r.Check(context.Background()); !errors.Is(err, errs.Format) {
		t.Errorf("Expected %v but got %v instead", errs.Format, err)
	}
	if !strings.Contains(stdout.String(), "missing") {
		t.Errorf("expected the missing file to be reported\n%s", stdout.String())
	}
}

func TestBuildWithoutRecords(t *testing.T) {
	r, _, _ := fixture(t, config.BackendDir)

	if err := r.Build(Stdout, true); !errors.Is(err, errs.NotFound) {
		t.Errorf("Expected %v but got %v instead", errs.NotFound, err)
	}
}

func TestManualExpandsDirectories(t *testing.T) {
	r, _, media := fixture(t, config.BackendDir)
	episodes := filepath.Join(media, "episodes")
	for _, name := range []string{"02.mp4", "01.mp4", "cover.jpg"} {
		if err := os.MkdirAll(episodes, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(episodes, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	single := filepath.Join(media, "Ep 1 [abc].mp4")

	files, err := r.expand([]string{single, episodes})
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{single, filepath.Join(episodes, "01.mp4"), filepath.Join(episodes, "02.mp4")}
	if strings.Join(files, "|") != strings.Join(expected, "|") {
		t.Errorf("Expected %v but got %v instead", expected, files)
	}
}
