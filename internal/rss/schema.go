package rss

import "strconv"

const (
	Version          = "2.0"
	ItunesNamespace  = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	ContentNamespace = "http://purl.org/rss/1.0/modules/content/"
)

// Feed is the document root (rss).
type Feed struct {
	Channel Channel
}

func (f *Feed) write(x *Writer) {
	x.Start("rss",
		Attr{Name: "version", Value: Version},
		Attr{Name: "xmlns:itunes", Value: ItunesNamespace},
		Attr{Name: "xmlns:content", Value: ContentNamespace},
	)
	f.Channel.write(x)
	x.End()
}

// Channel holds the show metadata (channel). Nil fields are not emitted.
type Channel struct {
	Title        string
	ItunesType   *string
	Link         *string
	ItunesAuthor *string
	Description  *string
	ItunesImage  *Image
	Items        []Item
}

func (c *Channel) write(x *Writer) {
	x.Start("channel")
	x.Text("title", c.Title)
	x.Optional("itunes:type", c.ItunesType)
	x.Optional("link", c.Link)
	x.Optional("itunes:author", c.ItunesAuthor)
	x.Optional("description", c.Description)
	if c.ItunesImage != nil {
		c.ItunesImage.write(x)
	}
	for i := range c.Items {
		c.Items[i].write(x)
	}
	x.End()
}

// Image references the show artwork (itunes:image).
type Image struct {
	Href string
}

func (i *Image) write(x *Writer) {
	x.Empty("itunes:image", Attr{Name: "href", Value: i.Href})
}

// Item is one episode (item).
type Item struct {
	Title          string
	ItunesEpisode  *uint64
	Description    *string
	Enclosure      Enclosure
	GUID           string
	PubDate        string
	ItunesDuration uint64
}

func (i *Item) write(x *Writer) {
	x.Start("item")
	x.Text("title", i.Title)
	if i.ItunesEpisode != nil {
		x.Text("itunes:episode", strconv.FormatUint(*i.ItunesEpisode, 10))
	}
	x.Optional("description", i.Description)
	i.Enclosure.write(x)
	x.Text("guid", i.GUID)
	x.Text("pubDate", i.PubDate)
	x.Text("itunes:duration", strconv.FormatUint(i.ItunesDuration, 10))
	x.End()
}

// Enclosure references the media file of an item (enclosure).
type Enclosure struct {
	Length uint64
	Type   string
	URL    string
}

func (e *Enclosure) write(x *Writer) {
	x.Empty("enclosure",
		Attr{Name: "length", Value: strconv.FormatUint(e.Length, 10)},
		Attr{Name: "type", Value: e.Type},
		Attr{Name: "url", Value: e.URL},
	)
}
