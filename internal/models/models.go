package models

import (
	"errors"
	"mime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/fedragon/feedme/internal/identity"
)

// Channel types understood by podcast clients.
const (
	TypeEpisodic = "episodic"
	TypeSerial   = "serial"
)

// Entry is the persisted record of one media file. Records are created once
// and never rewritten.
type Entry struct {
	File        string            `json:"file"`
	UUID        identity.Identity `json:"uuid"`
	Size        uint64            `json:"size"`
	Type        string            `json:"type"`
	Duration    uint64            `json:"duration"`
	Date        uint64            `json:"date"`
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	Episode     *uint64           `json:"episode,omitempty"`
}

func (e *Entry) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.File, validation.Required),
		validation.Field(&e.Title, validation.Required),
		validation.Field(&e.Type, validation.Required, validation.By(mediaType)),
		validation.Field(&e.UUID, validation.By(nonZeroIdentity)),
		validation.Field(&e.Episode, validation.NilOrNotEmpty),
	)
}

// Playlist is the persisted show record. Entries are not part of the record,
// they are collected separately and kept here in output order.
type Playlist struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Author      *string `json:"author,omitempty"`
	Thumbnail   *string `json:"thumbnail,omitempty"`
	URL         *string `json:"url,omitempty"`
	Type        *string `json:"type,omitempty"`

	Entries []Entry `json:"-"`
}

func (p *Playlist) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Title, validation.Required),
		validation.Field(&p.Type, validation.NilOrNotEmpty, validation.In(TypeEpisodic, TypeSerial)),
	)
}

// Media is a file found while walking a directory.
type Media struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func mediaType(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, _, err := mime.ParseMediaType(s); err != nil {
		return errors.New("must be a valid MIME type")
	}
	return nil
}

func nonZeroIdentity(value interface{}) error {
	if id, ok := value.(identity.Identity); ok && id.IsZero() {
		return errors.New("cannot be blank")
	}
	return nil
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
