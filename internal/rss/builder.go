// Package rss maps playlists onto a podcast RSS feed and serialises it.
//
// Element order inside channel and item is fixed and optional fields that
// are absent are left out entirely, never written as empty elements.
package rss

import (
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/fs"
	"github.com/fedragon/feedme/internal/models"
)

// Resolver maps a local file onto its public URL.
type Resolver interface {
	Resolve(path string) (string, error)
}

type Builder struct {
	Resolver Resolver
	// MediaDir anchors relative entry and thumbnail paths.
	MediaDir string
	Logger   *zap.Logger
}

// Build maps the playlist onto a feed, one item per entry in entry order.
// Any failure aborts the whole feed.
func (b *Builder) Build(playlist models.Playlist, entries []models.Entry) (*Feed, error) {
	channel := Channel{
		Title:        playlist.Title,
		ItunesType:   playlist.Type,
		Link:         playlist.URL,
		ItunesAuthor: playlist.Author,
		Description:  playlist.Description,
		Items:        make([]Item, 0, len(entries)),
	}

	if playlist.Thumbnail != nil {
		href, err := b.thumbnail(*playlist.Thumbnail)
		if err != nil {
			return nil, err
		}
		channel.ItunesImage = &Image{Href: href}
	}

	for _, entry := range entries {
		item, err := b.item(entry)
		if err != nil {
			return nil, err
		}
		channel.Items = append(channel.Items, item)
	}

	b.logger().Debug("Built feed", zap.String("title", channel.Title), zap.Int("items", len(channel.Items)))
	return &Feed{Channel: channel}, nil
}

func (b *Builder) item(entry models.Entry) (Item, error) {
	link, err := b.Resolver.Resolve(b.local(entry.File))
	if err != nil {
		return Item{}, errs.Wrap(errs.KindOf(err), err, "cannot publish %s", entry.File)
	}

	pubDate, err := FormatDate(entry.Date)
	if err != nil {
		return Item{}, errs.Wrap(errs.KindOf(err), err, "invalid date of %s", entry.File)
	}

	return Item{
		Title:         entry.Title,
		ItunesEpisode: entry.Episode,
		Description:   entry.Description,
		Enclosure: Enclosure{
			Length: entry.Size,
			Type:   entry.Type,
			URL:    link,
		},
		GUID:           entry.UUID.String(),
		PubDate:        pubDate,
		ItunesDuration: entry.Duration,
	}, nil
}

// thumbnail passes absolute http(s) URLs through and publishes local files.
func (b *Builder) thumbnail(ref string) (string, error) {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https") {
		return ref, nil
	}

	link, err := b.Resolver.Resolve(b.local(ref))
	if err != nil {
		return "", errs.Wrap(errs.KindOf(err), err, "cannot publish thumbnail %s", ref)
	}
	return link, nil
}

func (b *Builder) local(path string) string {
	return fs.Local(b.MediaDir, path)
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// maxTimestamp is 9999-12-31T23:59:59Z, the last instant with a four digit
// year.
const maxTimestamp = 253402300799

// FormatDate renders a Unix timestamp in the RFC 2822 form used by pubDate.
func FormatDate(timestamp uint64) (string, error) {
	if timestamp > maxTimestamp {
		return "", errs.New(errs.Range, "timestamp %d is out of range", timestamp)
	}

	t := time.Unix(int64(timestamp), 0).UTC()
	if t.Year() < 1900 {
		return "", errs.New(errs.Format, "year %d cannot be represented", t.Year())
	}
	return t.Format(time.RFC1123Z), nil
}
