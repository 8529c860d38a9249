package tools

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Video is a video search result.
type Video struct {
	ID    string `json:"video_id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// fallbackVideoID is returned for empty queries.
const fallbackVideoID = "dQw4w9WgXcQ"

// VideoSearch generates deterministic video results for a search query,
// standing in for a real video platform API. The same query always
// yields the same video id, which keeps conversation replays stable.
type VideoSearch struct{}

// NewVideoSearch creates a VideoSearch.
func NewVideoSearch() *VideoSearch {
	return &VideoSearch{}
}

// Search returns the video for the query.
func (*VideoSearch) Search(query string) Video {
	query = strings.TrimSpace(query)
	if query == "" {
		return Video{
			ID:    fallbackVideoID,
			Title: "Unknown Video",
			URL:   watchURL(fallbackVideoID),
		}
	}

	id := videoID(query)
	return Video{
		ID:    id,
		Title: formatTitle(query),
		URL:   watchURL(id),
	}
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// videoID derives an 11-character id from the query hash, uppercasing
// some letters so it resembles a real video id.
func videoID(query string) string {
	sum := md5.Sum([]byte(query))
	id := hex.EncodeToString(sum[:])[:11]
	id = strings.ReplaceAll(id, "a", "A")
	return strings.ReplaceAll(id, "e", "E")
}

// formatTitle turns the search query back into a display title, dropping
// common search suffixes.
func formatTitle(query string) string {
	title := strings.ToLower(query)
	for _, suffix := range []string{" official audio", " official video", " music video", " lyrics"} {
		title = strings.ReplaceAll(title, suffix, "")
	}

	words := strings.Fields(title)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
