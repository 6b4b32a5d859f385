package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
	"TubeArticles/internal/retry"
)

// DefaultRSSURL is the public Atom feed of a channel's latest uploads.
const DefaultRSSURL = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

var channelIDPattern = regexp.MustCompile(`UC[a-zA-Z0-9_-]{22}`)

// SourceError describes a failed listing. It always matches domain.ErrFetch.
type SourceError struct {
	Source  string
	Channel string
	Status  int
	Err     error
}

func (e *SourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s list %s: HTTP %d: %v", e.Source, e.Channel, e.Status, e.Err)
	}
	return fmt.Sprintf("%s list %s: %v", e.Source, e.Channel, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{domain.ErrFetch, e.Err}
}

var errChannelNotFound = errors.New("channel not found")

// RSSSource lists videos from the channel Atom feed. The feed only carries
// the 15 most recent uploads.
type RSSSource struct {
	client   *http.Client
	template string
	policy   retry.Policy
	logger   *slog.Logger
}

var _ ports.FeedSource = (*RSSSource)(nil)

// NewRSSSource builds a feed lister. template must contain one %s for the channel ID.
func NewRSSSource(client *http.Client, template string, policy retry.Policy, logger *slog.Logger) *RSSSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if template == "" {
		template = DefaultRSSURL
	}
	return &RSSSource{client: client, template: template, policy: policy, logger: logger}
}

// Name identifies the source kind handled by this lister.
func (r *RSSSource) Name() domain.SourceKind { return domain.SourceRSS }

// ListRecent fetches and parses the channel feed.
func (r *RSSSource) ListRecent(ctx context.Context, channel domain.Channel) ([]domain.Video, error) {
	feedURL := fmt.Sprintf(r.template, url.QueryEscape(channel.ExternalID))

	var videos []domain.Video
	err := retry.Do(ctx, r.policy, isRetryable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return &SourceError{Source: "rss", Channel: channel.ExternalID, Err: err}
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return &SourceError{Source: "rss", Channel: channel.ExternalID, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return &SourceError{Source: "rss", Channel: channel.ExternalID, Status: resp.StatusCode, Err: errChannelNotFound}
		case resp.StatusCode == http.StatusTooManyRequests:
			return &SourceError{Source: "rss", Channel: channel.ExternalID, Status: resp.StatusCode, Err: domain.ErrRateLimited}
		case resp.StatusCode != http.StatusOK:
			return &SourceError{Source: "rss", Channel: channel.ExternalID, Status: resp.StatusCode, Err: errors.New(resp.Status)}
		}

		parsed, err := gofeed.NewParser().Parse(resp.Body)
		if err != nil {
			return &SourceError{Source: "rss", Channel: channel.ExternalID, Err: fmt.Errorf("parse feed: %w", err)}
		}

		videos = feedToVideos(parsed, channel.ExternalID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.debug("feed listed", "channel", channel.ExternalID, "videos", len(videos))
	return videos, nil
}

func feedToVideos(parsed *gofeed.Feed, channelID string) []domain.Video {
	videos := make([]domain.Video, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		id := videoIDFromItem(item)
		if id == "" {
			continue
		}

		video := domain.Video{
			ID:          id,
			URL:         item.Link,
			Title:       strings.TrimSpace(item.Title),
			ChannelID:   channelID,
			ChannelName: strings.TrimSpace(parsed.Title),
		}
		if video.URL == "" {
			video.URL = WatchURL(id)
		}
		if item.PublishedParsed != nil {
			video.PublishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			video.PublishedAt = item.UpdatedParsed.UTC()
		}
		if len(item.Authors) > 0 && item.Authors[0].Name != "" {
			video.ChannelName = item.Authors[0].Name
		}
		videos = append(videos, video)
	}
	return videos
}

func videoIDFromItem(item *gofeed.Item) string {
	if yt, ok := item.Extensions["yt"]; ok {
		if ids := yt["videoId"]; len(ids) > 0 && ids[0].Value != "" {
			return ids[0].Value
		}
	}
	return VideoIDFromURL(item.Link)
}

// WatchURL returns the canonical watch page of a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// VideoIDFromURL extracts the video ID from watch, short and embed links.
func VideoIDFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	host := strings.TrimPrefix(u.Host, "www.")
	path := strings.Trim(u.Path, "/")
	switch {
	case host == "youtu.be":
		return path
	case strings.HasPrefix(path, "embed/"), strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "v/"):
		return path[strings.Index(path, "/")+1:]
	}
	return ""
}

// ExtractChannelID accepts a bare channel ID or a channel URL.
func ExtractChannelID(input string) (string, error) {
	if id := channelIDPattern.FindString(strings.TrimSpace(input)); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: no channel id in %q", domain.ErrConfiguration, input)
}

func isRetryable(err error) bool {
	if !retry.Always(err) {
		return false
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) && srcErr.Status >= 400 && srcErr.Status < 500 && srcErr.Status != http.StatusTooManyRequests {
		return false
	}
	return true
}

func (r *RSSSource) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
