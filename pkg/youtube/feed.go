package youtube

import (
	"encoding/xml"
	"time"

	"github.com/rotisserie/eris"
)

// atomFeed mirrors the subset of the channel uploads Atom feed we read.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string `xml:"videoId"`
	ChannelID string `xml:"channelId"`
	Title     string `xml:"title"`
	Published string `xml:"published"`
}

// ParseFeed parses a channel uploads RSS (Atom) feed. Entries with a
// malformed published stamp are dropped rather than failing the whole feed.
func ParseFeed(data []byte) ([]FeedEntry, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, eris.Wrap(err, "youtube: parse feed")
	}

	entries := make([]FeedEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e.VideoID == "" {
			continue
		}
		published, err := time.Parse(time.RFC3339, e.Published)
		if err != nil {
			continue
		}
		entries = append(entries, FeedEntry{
			VideoID:     e.VideoID,
			ChannelID:   e.ChannelID,
			Title:       e.Title,
			PublishedAt: published.UTC(),
		})
	}
	return entries, nil
}
