// Package metadata keeps Playlist and Entry records in a db.Store.
//
// The playlist lives at a single key and may be rewritten at will. Every
// entry lives at its own slot key, is written exactly once, and entries are
// collected in lexicographic key order. Slot keys are zero padded so the
// lexicographic order is also the numeric one; sparse slots are tolerated.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/db"
	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/metrics"
	"github.com/fedragon/feedme/internal/models"
)

const (
	PlaylistKey = "playlist-meta.feedme"
	EntryPrefix = "playlist-entry"
	EntrySuffix = ".feedme"
)

// SlotKey is the key of the entry record at slot.
func SlotKey(slot int) string {
	return fmt.Sprintf("%s%05d%s", EntryPrefix, slot, EntrySuffix)
}

type Store struct {
	kv      db.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewStore(kv db.Store, logger *zap.Logger, mx *metrics.Metrics) *Store {
	return &Store{kv: kv, logger: logger, metrics: mx}
}

// Collect reads the playlist and all entries, in slot order. The returned
// playlist carries the same entries.
func (s *Store) Collect() (models.Playlist, []models.Entry, error) {
	stop := s.metrics.Record("collect")
	defer func() { _ = stop() }()

	var playlist models.Playlist
	if err := s.read(PlaylistKey, &playlist); err != nil {
		return models.Playlist{}, nil, err
	}
	if err := playlist.Validate(); err != nil {
		return models.Playlist{}, nil, errs.Wrap(errs.Parse, err, "invalid record %s", PlaylistKey)
	}

	keys, err := s.kv.Keys(EntryPrefix, EntrySuffix)
	if err != nil {
		return models.Playlist{}, nil, err
	}

	entries := make([]models.Entry, 0, len(keys))
	for _, key := range keys {
		var entry models.Entry
		if err := s.read(key, &entry); err != nil {
			return models.Playlist{}, nil, err
		}
		if err := entry.Validate(); err != nil {
			return models.Playlist{}, nil, errs.Wrap(errs.Parse, err, "invalid record %s", key)
		}
		entries = append(entries, entry)
	}

	s.logger.Debug("Collected metadata", zap.String("title", playlist.Title), zap.Int("entries", len(entries)))
	playlist.Entries = entries
	return playlist, entries, nil
}

// HasEntry reports whether slot already holds a record.
func (s *Store) HasEntry(slot int) (bool, error) {
	_, err := s.kv.Get(SlotKey(slot))
	if errors.Is(err, errs.NotFound) {
		return false, nil
	}
	return err == nil, err
}

// WriteEntry persists entry at slot. An occupied slot is left untouched and
// reported with written == false.
func (s *Store) WriteEntry(slot int, entry models.Entry) (bool, error) {
	key := SlotKey(slot)

	if err := entry.Validate(); err != nil {
		return false, errs.Wrap(errs.Parse, err, "refusing to write invalid record %s", key)
	}
	encoded, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return false, errs.Wrap(errs.Encoding, err, "cannot encode record %s", key)
	}

	written, err := s.kv.PutNew(key, encoded)
	if err != nil {
		return false, err
	}
	if !written {
		s.logger.Info("Skipping existing entry", zap.String("key", key), zap.String("file", entry.File))
		return false, nil
	}

	_ = s.metrics.Increment("entry_written")
	s.logger.Debug("Wrote entry", zap.String("key", key), zap.String("file", entry.File))
	return true, nil
}

// WritePlaylist persists the playlist record, replacing any previous one.
func (s *Store) WritePlaylist(playlist models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return errs.Wrap(errs.Parse, err, "refusing to write invalid record %s", PlaylistKey)
	}
	encoded, err := json.MarshalIndent(&playlist, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Encoding, err, "cannot encode record %s", PlaylistKey)
	}

	if err := s.kv.Put(PlaylistKey, encoded); err != nil {
		return err
	}
	s.logger.Debug("Wrote playlist", zap.String("title", playlist.Title))
	return nil
}

func (s *Store) read(key string, target interface{}) error {
	raw, err := s.kv.Get(key)
	if err != nil {
		return err
	}
	// encoding/json would quietly substitute U+FFFD
	if !utf8.Valid(raw) {
		return errs.New(errs.Encoding, "record %s is not valid UTF-8", key)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errs.Wrap(errs.Parse, err, "malformed record %s", key)
	}
	return nil
}
