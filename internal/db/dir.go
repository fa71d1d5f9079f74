package db

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
)

const lockName = ".feedme.lock"

// DirRepository stores one file per key inside a directory. Every write
// replaces the whole file atomically. The directory is locked for as long as
// the repository is open so two runs cannot ingest into it at once.
type DirRepository struct {
	root   string
	lock   *flock.Flock
	logger *zap.Logger
}

func OpenDir(root string, logger *zap.Logger) (*DirRepository, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "cannot open metadata directory")
	}
	if !info.IsDir() {
		return nil, errs.New(errs.IO, "%s is not a directory", root)
	}

	lock := flock.New(filepath.Join(root, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "cannot lock metadata directory %s", root)
	}
	if !ok {
		_ = lock.Close()
		return nil, errs.New(errs.IO, "metadata directory %s is in use by another process", root)
	}

	return &DirRepository{root: root, lock: lock, logger: logger}, nil
}

func (r *DirRepository) Get(key string) ([]byte, error) {
	path, err := r.path(key)
	if err != nil {
		return nil, err
	}

	value, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.Wrap(errs.NotFound, err, "record %s does not exist", key)
	}
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "cannot read record %s", key)
	}
	return value, nil
}

func (r *DirRepository) Put(key string, value []byte) error {
	path, err := r.path(key)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(value)); err != nil {
		return errs.Wrap(errs.IO, err, "cannot write record %s", key)
	}
	return nil
}

// PutNew relies on the directory lock for the check-then-write to be safe.
func (r *DirRepository) PutNew(key string, value []byte) (bool, error) {
	path, err := r.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Lstat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, errs.Wrap(errs.IO, err, "cannot inspect record %s", key)
	}

	return true, r.Put(key, value)
}

// Keys skips hidden files and names that are not valid UTF-8.
func (r *DirRepository) Keys(prefix, suffix string) ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "cannot list metadata directory %s", r.root)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !utf8.ValidString(name) {
			r.logger.Debug("Skipping undecodable file name", zap.ByteString("name", []byte(name)))
			continue
		}
		if strings.HasPrefix(name, ".") || e.IsDir() {
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			keys = append(keys, name)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (r *DirRepository) Close() error {
	return r.lock.Unlock()
}

func (r *DirRepository) path(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, filepath.Separator) || strings.HasPrefix(key, ".") {
		return "", errs.New(errs.Security, "invalid record key %q", key)
	}
	return filepath.Join(r.root, key), nil
}
