package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/fs"
	"github.com/fedragon/feedme/internal/models"
	"github.com/fedragon/feedme/internal/rss"
)

type Problem string

const (
	Missing        Problem = "missing"
	SizeMismatch   Problem = "size mismatch"
	Duplicate      Problem = "duplicate identity"
	OutsideWebroot Problem = "outside webroot"
	Unpublishable  Problem = "unpublishable"
)

// Finding is one problem with the entry at position Index of the collected
// entries.
type Finding struct {
	Index   int
	File    string
	Problem Problem
	Detail  string
}

// Checker verifies collected records against the media directory without
// modifying anything.
type Checker struct {
	Resolver   rss.Resolver
	MediaDir   string
	NumWorkers int
	Logger     *zap.Logger
}

type indexed struct {
	index int
	entry models.Entry
}

func (c *Checker) Check(parentCtx context.Context, playlist models.Playlist, entries []models.Entry) []Finding {
	c.Logger.Info("Checking entries", zap.String("title", playlist.Title), zap.Int("entries", len(entries)))

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	source := make(chan indexed)
	go func() {
		defer close(source)
		for i, e := range entries {
			select {
			case <-ctx.Done():
				return
			case source <- indexed{index: i, entry: e}:
			}
		}
	}()

	numWorkers := workers(c.NumWorkers)
	results := make([]<-chan Finding, numWorkers)
	for i := 0; i < numWorkers; i++ {
		results[i] = c.inspect(ctx, source)
	}

	var findings []Finding
	for f := range merge(ctx, results...) {
		findings = append(findings, f)
	}

	if playlist.Thumbnail != nil {
		if f, ok := c.publishable(-1, *playlist.Thumbnail); !ok {
			findings = append(findings, f)
		}
	}

	findings = append(findings, duplicates(entries)...)

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Index != findings[j].Index {
			return findings[i].Index < findings[j].Index
		}
		return findings[i].Problem < findings[j].Problem
	})

	c.Logger.Info("Checked entries", zap.Int("findings", len(findings)))
	return findings
}

func (c *Checker) inspect(ctx context.Context, source <-chan indexed) <-chan Finding {
	out := make(chan Finding)

	go func() {
		defer close(out)

		emit := func(f Finding) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- f:
				return true
			}
		}

		for s := range source {
			path := fs.Local(c.MediaDir, s.entry.File)
			info, err := os.Stat(path)
			if err != nil {
				if !emit(Finding{Index: s.index, File: s.entry.File, Problem: Missing, Detail: err.Error()}) {
					return
				}
				continue
			}

			if uint64(info.Size()) != s.entry.Size {
				f := Finding{Index: s.index, File: s.entry.File, Problem: SizeMismatch, Detail: sizes(s.entry.Size, info.Size())}
				if !emit(f) {
					return
				}
			}

			if f, ok := c.publishable(s.index, s.entry.File); !ok {
				if !emit(f) {
					return
				}
			}
		}
	}()

	return out
}

func (c *Checker) publishable(index int, file string) (Finding, bool) {
	if c.Resolver == nil {
		return Finding{}, true
	}
	_, err := c.Resolver.Resolve(fs.Local(c.MediaDir, file))
	switch {
	case err == nil:
		return Finding{}, true
	case errors.Is(err, errs.Security):
		return Finding{Index: index, File: file, Problem: OutsideWebroot, Detail: err.Error()}, false
	case errors.Is(err, errs.IO):
		// a missing file is reported on its own
		if index >= 0 {
			return Finding{}, true
		}
		return Finding{Index: index, File: file, Problem: Missing, Detail: err.Error()}, false
	default:
		return Finding{Index: index, File: file, Problem: Unpublishable, Detail: err.Error()}, false
	}
}

func duplicates(entries []models.Entry) []Finding {
	first := make(map[string]int)
	var findings []Finding
	for i, e := range entries {
		key := e.UUID.String()
		if j, ok := first[key]; ok {
			findings = append(findings, Finding{
				Index:   i,
				File:    e.File,
				Problem: Duplicate,
				Detail:  "same identity as " + entries[j].File,
			})
			continue
		}
		first[key] = i
	}
	return findings
}

func sizes(recorded uint64, actual int64) string {
	return fmt.Sprintf("recorded %s bytes, found %s", humanize.Comma(int64(recorded)), humanize.Comma(actual))
}
