package core

import (
	"context"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/fs"
	"github.com/fedragon/feedme/internal/identity"
	"github.com/fedragon/feedme/internal/metadata"
	"github.com/fedragon/feedme/internal/metrics"
	"github.com/fedragon/feedme/internal/models"
	"github.com/fedragon/feedme/internal/probe"
)

// ManualContext is mixed into the identity of manually ingested files.
const ManualContext = "feedme.manual"

// Ingester turns a list of local media files into entry records, one slot
// per file in the given order, and then writes the playlist record.
type Ingester struct {
	Store     *metadata.Store
	Prober    probe.Prober
	Algorithm identity.Algorithm
	// MediaDir is the directory the records are read against later; files
	// below it are recorded relative to it.
	MediaDir string
	Jobs     int
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func (in *Ingester) Ingest(ctx context.Context, files []string, playlist models.Playlist) (Summary, error) {
	stop := in.Metrics.Record("ingest")
	defer func() { _ = stop() }()

	var summary Summary
	if err := playlist.Validate(); err != nil {
		return summary, errs.Wrap(errs.Parse, err, "invalid playlist")
	}

	var pending []int
	for slot, file := range files {
		exists, err := in.Store.HasEntry(slot)
		if err != nil {
			return summary, err
		}
		if exists {
			in.Logger.Info("Skipping existing entry", zap.Int("slot", slot), zap.String("file", file))
			summary.Skipped++
			continue
		}
		pending = append(pending, slot)
	}

	in.Logger.Info("Ingesting files", zap.Int("pending", len(pending)), zap.Int("skipped", summary.Skipped))

	entries := make([]models.Entry, len(pending))
	err := parallel(ctx, in.Jobs, len(pending), func(ctx context.Context, i int) error {
		slot := pending[i]
		entry, err := in.entry(ctx, slot, files[slot])
		if err != nil {
			return err
		}
		entries[i] = entry
		return nil
	})
	if err != nil {
		return summary, err
	}

	for i, slot := range pending {
		written, err := in.Store.WriteEntry(slot, entries[i])
		if err != nil {
			return summary, err
		}
		if written {
			summary.Written++
		} else {
			summary.Skipped++
		}
	}

	if err := in.Store.WritePlaylist(playlist); err != nil {
		return summary, err
	}

	in.Logger.Info("Ingested files", zap.Int("written", summary.Written), zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (in *Ingester) entry(ctx context.Context, slot int, path string) (models.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Entry{}, errs.Wrap(errs.IO, err, "cannot stat %s", path)
	}
	if info.IsDir() {
		return models.Entry{}, errs.New(errs.Format, "%s is a directory", path)
	}

	name := filepath.Base(path)
	if !utf8.ValidString(name) {
		return models.Entry{}, errs.New(errs.Encoding, "file name %q is not valid UTF-8", name)
	}

	mediaType, err := fs.MediaType(path)
	if err != nil {
		return models.Entry{}, err
	}

	if info.ModTime().Unix() < 0 {
		return models.Entry{}, errs.New(errs.Range, "modification time of %s is before 1970", path)
	}

	file, err := fs.Relative(in.MediaDir, path)
	if err != nil {
		return models.Entry{}, err
	}

	in.Logger.Debug("Probing duration", zap.String("file", name))
	duration, err := in.Prober.Duration(ctx, path)
	if err != nil {
		return models.Entry{}, err
	}

	in.Logger.Debug("Computing identity", zap.String("file", name))
	id, err := identity.NewBuilder(
		identity.WithContext([]byte(ManualContext)),
		identity.WithAlgorithm(in.Algorithm),
		identity.WithMetrics(in.Metrics),
		identity.WithLogger(in.Logger),
	).Finalize(path)
	if err != nil {
		return models.Entry{}, err
	}

	episode := uint64(slot + 1)
	return models.Entry{
		File:     file,
		UUID:     id,
		Size:     uint64(info.Size()),
		Type:     mediaType,
		Duration: duration,
		Date:     uint64(info.ModTime().Unix()),
		Title:    name,
		Episode:  &episode,
	}, nil
}
