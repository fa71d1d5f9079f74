package core

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/fs"
	"github.com/fedragon/feedme/internal/identity"
	"github.com/fedragon/feedme/internal/metadata"
	"github.com/fedragon/feedme/internal/metrics"
	"github.com/fedragon/feedme/internal/models"
	"github.com/fedragon/feedme/internal/ytdlp"
)

// Importer translates the metadata yt-dlp left in a download directory into
// playlist and entry records.
type Importer struct {
	Store     *metadata.Store
	Algorithm identity.Algorithm
	// MediaDir is the directory the records are read against later; files
	// below it are recorded relative to it.
	MediaDir string
	Jobs     int
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type download struct {
	slot  int
	path  string
	video *ytdlp.Video
}

func (im *Importer) Import(ctx context.Context, dir string) (Summary, error) {
	stop := im.Metrics.Record("import")
	defer func() { _ = stop() }()

	var summary Summary

	infos, err := ytdlp.Scan(dir, im.Logger)
	if err != nil {
		return summary, err
	}

	var pending []download
	for _, info := range infos {
		switch {
		case info.Playlist != nil:
			playlist, err := im.playlist(dir, info)
			if err != nil {
				return summary, err
			}
			if err := im.Store.WritePlaylist(playlist); err != nil {
				return summary, err
			}
		case info.Video != nil:
			d := download{
				slot:  int(info.Video.PlaylistIndex - 1),
				path:  filepath.Join(dir, info.Base+"."+info.Video.Ext),
				video: info.Video,
			}
			exists, err := im.Store.HasEntry(d.slot)
			if err != nil {
				return summary, err
			}
			if exists {
				im.Logger.Info("Skipping existing entry", zap.Int("slot", d.slot), zap.String("file", d.path))
				summary.Skipped++
				continue
			}
			pending = append(pending, d)
		}
	}

	im.Logger.Info("Importing downloads", zap.Int("pending", len(pending)), zap.Int("skipped", summary.Skipped))

	entries := make([]models.Entry, len(pending))
	err = parallel(ctx, im.Jobs, len(pending), func(ctx context.Context, i int) error {
		entry, err := im.entry(pending[i])
		if err != nil {
			return err
		}
		entries[i] = entry
		return nil
	})
	if err != nil {
		return summary, err
	}

	for i, d := range pending {
		written, err := im.Store.WriteEntry(d.slot, entries[i])
		if err != nil {
			return summary, err
		}
		if written {
			summary.Written++
		} else {
			summary.Skipped++
		}
	}

	im.Logger.Info("Imported downloads", zap.Int("written", summary.Written), zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (im *Importer) playlist(dir string, info ytdlp.Info) (models.Playlist, error) {
	meta := info.Playlist
	playlist := models.Playlist{
		Title:       meta.Title,
		Description: models.String(meta.Description),
		Author:      models.String(meta.Uploader),
		URL:         models.String(meta.WebpageURL),
	}

	thumbnail := filepath.Join(dir, info.Base+".jpg")
	if _, err := os.Stat(thumbnail); err == nil {
		rel, err := fs.Relative(im.MediaDir, thumbnail)
		if err != nil {
			return models.Playlist{}, err
		}
		playlist.Thumbnail = &rel
	}

	return playlist, nil
}

func (im *Importer) entry(d download) (models.Entry, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return models.Entry{}, errs.Wrap(errs.IO, err, "cannot stat %s", d.path)
	}

	mediaType, err := fs.MediaType(d.path)
	if err != nil {
		return models.Entry{}, err
	}

	date, err := d.video.Date()
	if err != nil {
		return models.Entry{}, err
	}

	file, err := fs.Relative(im.MediaDir, d.path)
	if err != nil {
		return models.Entry{}, err
	}

	im.Logger.Debug("Computing identity", zap.String("file", d.path), zap.String("id", d.video.ID))
	id, err := identity.NewBuilder(
		identity.WithContext([]byte(d.video.ID)),
		identity.WithAlgorithm(im.Algorithm),
		identity.WithMetrics(im.Metrics),
		identity.WithLogger(im.Logger),
	).Finalize(d.path)
	if err != nil {
		return models.Entry{}, err
	}

	episode := d.video.PlaylistIndex
	return models.Entry{
		File:        file,
		UUID:        id,
		Size:        uint64(info.Size()),
		Type:        mediaType,
		Duration:    uint64(d.video.Duration),
		Date:        date,
		Title:       d.video.Title,
		Description: models.String(d.video.Description),
		Episode:     &episode,
	}, nil
}
