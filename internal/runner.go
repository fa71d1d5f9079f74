package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/config"
	"github.com/fedragon/feedme/internal/core"
	"github.com/fedragon/feedme/internal/db"
	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/fs"
	"github.com/fedragon/feedme/internal/metadata"
	"github.com/fedragon/feedme/internal/metrics"
	"github.com/fedragon/feedme/internal/models"
	"github.com/fedragon/feedme/internal/probe"
	"github.com/fedragon/feedme/internal/rss"
	"github.com/fedragon/feedme/internal/webroot"
)

// Stdout is the --out value that writes the feed to standard output.
const Stdout = "-"

// Runner executes one command against the records of a media directory.
type Runner struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	config   *config.Config
	mediaDir string
	stdout   io.Writer
}

func NewRunner(logger *zap.Logger, mx *metrics.Metrics, cfg *config.Config, mediaDir string, stdout io.Writer) *Runner {
	return &Runner{
		logger:   logger,
		metrics:  mx,
		config:   cfg,
		mediaDir: mediaDir,
		stdout:   stdout,
	}
}

// Build renders the feed of the media directory into out.
func (r *Runner) Build(out string, indent bool) error {
	defer r.elapsed("build")()

	var feed *rss.Feed
	err := r.withStore(func(store *metadata.Store) error {
		playlist, entries, err := store.Collect()
		if err != nil {
			return err
		}

		resolver, err := webroot.New(r.config.Webroot, r.config.BaseURL)
		if err != nil {
			return err
		}
		r.logger.Debug("Resolved webroot", zap.String("root", resolver.Root()), zap.String("base_url", r.config.BaseURL))

		builder := &rss.Builder{Resolver: resolver, MediaDir: r.mediaDir, Logger: r.logger}
		feed, err = builder.Build(playlist, entries)
		return err
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := rss.Encode(&buf, feed, rss.EncodeOptions{Indent: indent}); err != nil {
		return err
	}

	if out == "" || out == Stdout {
		if _, err := buf.WriteTo(r.stdout); err != nil {
			return errs.Wrap(errs.IO, err, "cannot write feed")
		}
		return nil
	}

	if err := atomic.WriteFile(out, &buf); err != nil {
		return errs.Wrap(errs.IO, err, "cannot write feed to %s", out)
	}
	r.logger.Info("Wrote feed", zap.String("path", out), zap.Int("items", len(feed.Channel.Items)))
	return nil
}

// Manual records the given files, in order, and the playlist. Directories
// contribute their media files in path order.
func (r *Runner) Manual(ctx context.Context, paths []string, playlist models.Playlist) error {
	defer r.elapsed("manual")()

	files, err := r.expand(paths)
	if err != nil {
		return err
	}

	return r.withStore(func(store *metadata.Store) error {
		ingester := &core.Ingester{
			Store:     store,
			Prober:    probe.FFprobe{Binary: r.config.FFprobe},
			Algorithm: r.config.Algorithm(),
			MediaDir:  r.mediaDir,
			Jobs:      r.config.Jobs,
			Metrics:   r.metrics,
			Logger:    r.logger,
		}
		_, err := ingester.Ingest(ctx, files, playlist)
		return err
	})
}

// Import records the yt-dlp downloads of the media directory.
func (r *Runner) Import(ctx context.Context) error {
	defer r.elapsed("ytdlp")()

	return r.withStore(func(store *metadata.Store) error {
		importer := &core.Importer{
			Store:     store,
			Algorithm: r.config.Algorithm(),
			MediaDir:  r.mediaDir,
			Jobs:      r.config.Jobs,
			Metrics:   r.metrics,
			Logger:    r.logger,
		}
		_, err := importer.Import(ctx, r.mediaDir)
		return err
	})
}

// List prints the collected records as a table.
func (r *Runner) List() error {
	return r.withStore(func(store *metadata.Store) error {
		playlist, entries, err := store.Collect()
		if err != nil {
			return err
		}

		fmt.Fprintf(r.stdout, "%s\n", playlist.Title)

		t := table.NewWriter()
		t.SetOutputMirror(r.stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "Title", "File", "Size", "Duration", "Date", "Identity"})

		var total uint64
		for i, e := range entries {
			total += e.Size
			t.AppendRow(table.Row{
				i + 1,
				e.Title,
				e.File,
				humanize.IBytes(e.Size),
				(time.Duration(e.Duration) * time.Second).String(),
				time.Unix(int64(e.Date), 0).UTC().Format(time.DateOnly),
				e.UUID.String(),
			})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d entries", len(entries)), "", humanize.IBytes(total)})
		t.Render()
		return nil
	})
}

// Check prints problems with the collected records. It fails when there is
// at least one.
func (r *Runner) Check(ctx context.Context) error {
	defer r.elapsed("check")()

	return r.withStore(func(store *metadata.Store) error {
		playlist, entries, err := store.Collect()
		if err != nil {
			return err
		}

		resolver, err := webroot.New(r.config.Webroot, r.config.BaseURL)
		if err != nil {
			return err
		}

		checker := &core.Checker{
			Resolver:   resolver,
			MediaDir:   r.mediaDir,
			NumWorkers: r.config.Jobs,
			Logger:     r.logger,
		}
		findings := checker.Check(ctx, playlist, entries)
		if len(findings) == 0 {
			fmt.Fprintf(r.stdout, "%d entries, no problems found\n", len(entries))
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(r.stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "File", "Problem", "Detail"})
		for _, f := range findings {
			index := "thumbnail"
			if f.Index >= 0 {
				index = fmt.Sprint(f.Index + 1)
			}
			t.AppendRow(table.Row{index, f.File, string(f.Problem), f.Detail})
		}
		t.Render()

		_ = r.metrics.Increment("check_findings")
		return errs.New(errs.Format, "found %d problems in %d entries", len(findings), len(entries))
	})
}

func (r *Runner) expand(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			files = append(files, path)
			continue
		}

		media, err := fs.Walk(r.metrics, path, fs.Types())
		if err != nil {
			return nil, err
		}
		for _, m := range media {
			files = append(files, m.Path)
		}
		r.logger.Debug("Expanded directory", zap.String("path", path), zap.Int("files", len(media)))
	}
	return files, nil
}

func (r *Runner) withStore(fn func(store *metadata.Store) error) error {
	kv, err := r.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			r.logger.Warn("Cannot close store", zap.Error(err))
		}
	}()

	return fn(metadata.NewStore(kv, r.logger, r.metrics))
}

func (r *Runner) open() (db.Store, error) {
	switch r.config.Store.Backend {
	case config.BackendBolt:
		path := r.config.DatabasePath(r.mediaDir)
		r.logger.Debug("Opening bolt store", zap.String("path", path))
		repo, err := db.OpenBolt(path, r.logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		r.logger.Debug("Opening directory store", zap.String("path", r.mediaDir))
		repo, err := db.OpenDir(r.mediaDir, r.logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func (r *Runner) elapsed(command string) func() {
	start := time.Now()
	stop := r.metrics.Record(command)
	return func() {
		_ = stop()
		r.logger.Debug("Elapsed time", zap.String("command", command), zap.Duration("elapsed", time.Since(start)))
	}
}
