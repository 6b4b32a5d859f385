package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
	"TubeArticles/internal/retry"
)

// SearchSource lists uploads through the YouTube Data API search endpoint.
// Unlike the Atom feed it honours the lookback window server-side.
type SearchSource struct {
	service    *youtube.Service
	lookback   time.Duration
	maxResults int64
	policy     retry.Policy
	now        func() time.Time
	logger     *slog.Logger
}

var _ ports.FeedSource = (*SearchSource)(nil)

// NewSearchSource connects to the Data API with an API key. Extra options
// override the endpoint or HTTP client.
func NewSearchSource(ctx context.Context, apiKey string, lookback time.Duration, maxResults int64, policy retry.Policy, logger *slog.Logger, opts ...option.ClientOption) (*SearchSource, error) {
	if apiKey == "" && len(opts) == 0 {
		return nil, fmt.Errorf("%w: youtube api key is empty", domain.ErrConfiguration)
	}
	if maxResults <= 0 {
		maxResults = 25
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &SearchSource{
		service:    service,
		lookback:   lookback,
		maxResults: maxResults,
		policy:     policy,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// Name identifies the source kind handled by this lister.
func (s *SearchSource) Name() domain.SourceKind { return domain.SourceSearch }

// ListRecent returns the newest uploads published inside the lookback window.
func (s *SearchSource) ListRecent(ctx context.Context, channel domain.Channel) ([]domain.Video, error) {
	after := s.now().Add(-s.lookback).UTC().Format(time.RFC3339)

	var resp *youtube.SearchListResponse
	err := retry.Do(ctx, s.policy, isRetryable, func(ctx context.Context) error {
		var err error
		resp, err = s.service.Search.List([]string{"snippet"}).
			ChannelId(channel.ExternalID).
			Type("video").
			Order("date").
			PublishedAfter(after).
			MaxResults(s.maxResults).
			Context(ctx).
			Do()
		if err != nil {
			return searchError(channel.ExternalID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	videos := make([]domain.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		video := domain.Video{
			ID:          item.Id.VideoId,
			URL:         WatchURL(item.Id.VideoId),
			Title:       strings.TrimSpace(item.Snippet.Title),
			ChannelID:   channel.ExternalID,
			ChannelName: item.Snippet.ChannelTitle,
		}
		if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			video.PublishedAt = ts.UTC()
		}
		videos = append(videos, video)
	}

	if s.logger != nil {
		s.logger.Debug("search listed", "channel", channel.ExternalID, "videos", len(videos))
	}
	return videos, nil
}

func searchError(channelID string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		inner := error(apiErr)
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			inner = fmt.Errorf("%w: %v", domain.ErrRateLimited, apiErr.Message)
		case http.StatusNotFound:
			inner = errChannelNotFound
		}
		return &SourceError{Source: "search", Channel: channelID, Status: apiErr.Code, Err: inner}
	}
	return &SourceError{Source: "search", Channel: channelID, Err: err}
}
