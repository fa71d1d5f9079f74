// Package ytdlp reads the .info.json files yt-dlp writes next to its
// downloads when run with --write-info-json.
package ytdlp

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/errs"
)

const (
	InfoSuffix = ".info.json"

	TypePlaylist = "playlist"
	TypeVideo    = "video"

	uploadDateLayout = "20060102"
)

// Playlist is the metadata yt-dlp writes for a whole playlist.
type Playlist struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Uploader    string `json:"uploader"`
	WebpageURL  string `json:"webpage_url"`
}

func (p *Playlist) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Title, validation.Required),
	)
}

// Video is the metadata yt-dlp writes for one downloaded playlist entry.
type Video struct {
	ID            string  `json:"id"`
	Ext           string  `json:"ext"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Duration      float64 `json:"duration"`
	UploadDate    string  `json:"upload_date"`
	PlaylistIndex uint64  `json:"playlist_index"`
}

func (v *Video) Validate() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.ID, validation.Required),
		validation.Field(&v.Ext, validation.Required),
		validation.Field(&v.Title, validation.Required),
		validation.Field(&v.Duration, validation.Min(0.0)),
		validation.Field(&v.UploadDate, validation.Required, validation.Date(uploadDateLayout)),
		validation.Field(&v.PlaylistIndex, validation.Required, validation.Max(uint64(math.MaxInt32))),
	)
}

// Date is the upload date at midnight UTC as a Unix timestamp.
func (v *Video) Date() (uint64, error) {
	day, err := time.Parse(uploadDateLayout, v.UploadDate)
	if err != nil {
		return 0, errs.Wrap(errs.Parse, err, "invalid upload date %q", v.UploadDate)
	}
	if day.Unix() < 0 {
		return 0, errs.New(errs.Range, "upload date %q is before 1970", v.UploadDate)
	}
	return uint64(day.Unix()), nil
}

// Info is one parsed .info.json file. Exactly one of Playlist and Video is
// set.
type Info struct {
	// Base is the file name without the .info.json suffix; yt-dlp names the
	// media and thumbnail files after it.
	Base     string
	Playlist *Playlist
	Video    *Video
}

// Parse decodes an .info.json document, dispatching on its _type field.
func Parse(name string, raw []byte) (Info, error) {
	info := Info{Base: strings.TrimSuffix(filepath.Base(name), InfoSuffix)}

	var header struct {
		Type string `json:"_type"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return Info{}, errs.Wrap(errs.Parse, err, "malformed %s", name)
	}

	switch header.Type {
	case TypePlaylist:
		var p Playlist
		if err := decode(name, raw, &p); err != nil {
			return Info{}, err
		}
		info.Playlist = &p
	case TypeVideo:
		var v Video
		if err := decode(name, raw, &v); err != nil {
			return Info{}, err
		}
		info.Video = &v
	default:
		return Info{}, errs.New(errs.Parse, "unknown info-JSON type %q in %s", header.Type, name)
	}

	return info, nil
}

func decode(name string, raw []byte, target validation.Validatable) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return errs.Wrap(errs.Parse, err, "malformed %s", name)
	}
	if err := target.Validate(); err != nil {
		return errs.Wrap(errs.Parse, err, "invalid %s", name)
	}
	return nil
}

// Scan parses every .info.json file directly inside dir, in file name
// order. Hidden files and names that are not valid UTF-8 are skipped.
func Scan(dir string, logger *zap.Logger) ([]Info, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "cannot list %s", dir)
	}

	var names []string
	for _, e := range dirEntries {
		name := e.Name()
		switch {
		case !utf8.ValidString(name):
			logger.Debug("Skipping undecodable file name", zap.ByteString("name", []byte(name)))
		case strings.HasPrefix(name, "."), e.IsDir(), !strings.HasSuffix(name, InfoSuffix):
		default:
			names = append(names, name)
		}
	}
	sort.Strings(names)

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errs.Wrap(errs.IO, err, "cannot read %s", name)
		}
		info, err := Parse(name, raw)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, nil
}
