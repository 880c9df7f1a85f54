package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Known YouTube URL shapes. The id charset is the base64-url alphabet.
var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`youtube\.com/embed/([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{6,})`),
}

// ExtractYouTubeID pulls the video id out of watch, shorts, embed and
// short-link URL forms. ok is false when no known shape matches.
func ExtractYouTubeID(link string) (id string, ok bool) {
	for _, p := range youtubeIDPatterns {
		if m := p.FindStringSubmatch(link); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// VideoMetadata is the platform metadata of one video.
type VideoMetadata struct {
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Channel     string    `json:"channel"`
	PublishedAt time.Time `json:"publishedAt"`
	Thumbnail   string    `json:"thumbnail"`
	Tags        []string  `json:"tags"`
	Duration    string    `json:"duration"`
	Language    string    `json:"language"`
	Views       int64     `json:"views"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
}

// YouTubeClient fetches video metadata from the YouTube Data API v3.
type YouTubeClient struct {
	// APIKey is required. BaseURL defaults to the public API endpoint.
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c *YouTubeClient) baseURL() string {
	if c.BaseURL == "" {
		return "https://www.googleapis.com/youtube/v3"
	}
	return c.BaseURL
}

func (c *YouTubeClient) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Timeout: 10 * time.Second}
	}
	return c.HTTPClient
}

type youtubeListResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
			Tags         []string `json:"tags"`
			Thumbnails   map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
			DefaultAudioLanguage string `json:"defaultAudioLanguage"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Fetch loads title, description, channel, publish date, thumbnail, tags,
// duration and counters for the given video id.
func (c *YouTubeClient) Fetch(ctx context.Context, videoID string) (*VideoMetadata, error) {
	if c.APIKey == "" {
		return nil, errors.New("youtube: api key not configured")
	}
	q := url.Values{}
	q.Set("part", "snippet,contentDetails,statistics")
	q.Set("id", videoID)
	q.Set("key", c.APIKey)
	endpoint := fmt.Sprintf("%s/videos?%s", c.baseURL(), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "youtube: build request")
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "youtube: request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("youtube: unexpected status %d", resp.StatusCode)
	}
	var body youtubeListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "youtube: decode response")
	}
	if len(body.Items) == 0 {
		return nil, errors.Errorf("youtube: video %s not found", videoID)
	}

	item := body.Items[0]
	meta := &VideoMetadata{
		VideoID:     videoID,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		Channel:     item.Snippet.ChannelTitle,
		Tags:        item.Snippet.Tags,
		Duration:    item.ContentDetails.Duration,
		Language:    item.Snippet.DefaultAudioLanguage,
		Views:       parseCount(item.Statistics.ViewCount),
		Likes:       parseCount(item.Statistics.LikeCount),
		Comments:    parseCount(item.Statistics.CommentCount),
	}
	if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		meta.PublishedAt = t
	}
	// Prefer the largest thumbnail the API returned.
	for _, size := range []string{"maxres", "high", "medium", "default"} {
		if thumb, ok := item.Snippet.Thumbnails[size]; ok && thumb.URL != "" {
			meta.Thumbnail = thumb.URL
			break
		}
	}
	return meta, nil
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
