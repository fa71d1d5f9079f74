package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/metrics"
	"github.com/fedragon/feedme/internal/models"
)

const (
	M4A  = ".m4a"
	M4V  = ".m4v"
	MOV  = ".mov"
	MP3  = ".mp3"
	MP4  = ".mp4"
	WEBM = ".webm"
)

var mediaTypes = map[string]string{
	M4A:  "audio/mp4",
	M4V:  "video/mp4",
	MOV:  "video/quicktime",
	MP3:  "audio/mpeg",
	MP4:  "video/mp4",
	WEBM: "video/webm",
}

// Types lists every extension MediaType knows about.
func Types() []string {
	types := make([]string, 0, len(mediaTypes))
	for ext := range mediaTypes {
		types = append(types, ext)
	}
	sort.Strings(types)
	return types
}

// MediaType maps a file extension onto the MIME type published in the
// enclosure.
func MediaType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t, nil
	}
	return "", errs.New(errs.Format, "unknown media type of %s", path)
}

// Walk returns the media files below root whose extension is one of types,
// sorted by path. When root is a file it is returned on its own if it
// matches. Hidden files and directories are skipped.
func Walk(mx *metrics.Metrics, root string, types []string) ([]models.Media, error) {
	typesMap := make(map[string]int)
	for _, t := range types {
		typesMap[strings.ToLower(t)] = 1
	}

	var media []models.Media
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		_ = mx.Increment("walk")

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if typesMap[ext] == 0 {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		media = append(media, models.Media{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.NotFound, err, "cannot walk %s", root)
		}
		return nil, errs.Wrap(errs.IO, err, "cannot walk %s", root)
	}

	sort.Slice(media, func(i, j int) bool { return media[i].Path < media[j].Path })
	return media, nil
}

// Local anchors a record path at dir unless it is already absolute.
func Local(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Relative expresses path relative to dir when path lies below it, and as an
// absolute path otherwise.
func Relative(dir, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.Wrap(errs.IO, err, "cannot resolve %s", path)
	}
	if dir == "" {
		return abs, nil
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", errs.Wrap(errs.IO, err, "cannot resolve %s", dir)
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs, nil
	}
	return rel, nil
}
