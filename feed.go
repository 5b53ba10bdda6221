package newsagg

import (
	"encoding/xml"
	"fmt"
	"time"
)

// PublishedFeed is the RSS document produced by `Client.PublishXML`.
type PublishedFeed struct {
	XMLName xml.Name         `xml:"rss"`
	Version string           `xml:"version,attr"`
	Channel PublishedChannel `xml:"channel"`
}

// PublishedChannel is the channel of a published feed.
type PublishedChannel struct {
	Title       string          `xml:"title"`
	Link        string          `xml:"link"`
	Description string          `xml:"description"`
	Items       []PublishedItem `xml:"item"`
}

// PublishedItem is one published article.
//
// `ID` is the cached article's id, `Content` the rendered `content:encoded` html.
type PublishedItem struct {
	ID          string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Content     string `xml:"encoded"`
}

// PublishedAt returns the parsed `pubDate` of the item, zero if absent or malformed.
func (i PublishedItem) PublishedAt() time.Time {
	return parseTimestamp(i.PubDate)
}

// ParseXML parses XML bytes returned from `Client.PublishXML`.
func ParseXML(b []byte) (*PublishedFeed, error) {
	var parsed PublishedFeed
	if err := xml.Unmarshal(b, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse published xml: %w", err)
	}
	return &parsed, nil
}
