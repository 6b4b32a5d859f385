package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// DefaultBaseURL is YouTube's caption endpoint.
const DefaultBaseURL = "https://www.youtube.com/api/timedtext"

const maxBodyBytes = 8 << 20

// TimedtextFetcher downloads captions from the timedtext API, trying each
// preferred language in order.
type TimedtextFetcher struct {
	client    *http.Client
	baseURL   string
	languages []string
	minWords  int
	logger    *slog.Logger
}

var _ ports.TranscriptFetcher = (*TimedtextFetcher)(nil)

// NewTimedtextFetcher builds a fetcher. Empty arguments take defaults.
func NewTimedtextFetcher(client *http.Client, baseURL string, languages []string, minWords int, logger *slog.Logger) *TimedtextFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if len(languages) == 0 {
		languages = []string{"en", "fr"}
	}
	if minWords <= 0 {
		minWords = 50
	}
	return &TimedtextFetcher{
		client:    client,
		baseURL:   baseURL,
		languages: languages,
		minWords:  minWords,
		logger:    logger,
	}
}

type timedtextResponse struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

var errLanguageMissing = errors.New("language missing")

// Fetch returns the normalised transcript of videoID.
func (f *TimedtextFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("%w: empty video id", domain.ErrVideoUnavailable)
	}

	for _, lang := range f.languages {
		text, err := f.fetchLanguage(ctx, videoID, lang)
		if errors.Is(err, errLanguageMissing) {
			f.debug("no captions in language", "video_id", videoID, "lang", lang)
			continue
		}
		if err != nil {
			return "", err
		}

		text = Normalize(text)
		if words := len(strings.Fields(text)); words < f.minWords {
			return "", fmt.Errorf("%w: %d words in %s", domain.ErrTranscriptTooShort, words, lang)
		}
		return text, nil
	}

	return "", fmt.Errorf("%w: tried %s", domain.ErrNoTranscript, strings.Join(f.languages, ","))
}

func (f *TimedtextFetcher) fetchLanguage(ctx context.Context, videoID, lang string) (string, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)
	params.Set("fmt", "json3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", domain.ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: timedtext request: %w", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", errLanguageMissing
	case http.StatusForbidden:
		return "", fmt.Errorf("%w: video %s", domain.ErrTranscriptsDisabled, videoID)
	case http.StatusGone, http.StatusUnavailableForLegalReasons:
		return "", fmt.Errorf("%w: video %s", domain.ErrVideoUnavailable, videoID)
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %w", domain.ErrFetch, domain.ErrRateLimited)
	default:
		return "", fmt.Errorf("%w: timedtext status %d", domain.ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read timedtext: %w", domain.ErrFetch, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", errLanguageMissing
	}

	var parsed timedtextResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse timedtext: %w", domain.ErrFetch, err)
	}

	var sb strings.Builder
	for _, event := range parsed.Events {
		for _, seg := range event.Segs {
			sb.WriteString(seg.UTF8)
		}
		sb.WriteByte(' ')
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errLanguageMissing
	}
	return sb.String(), nil
}

// Normalize collapses all whitespace runs into single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (f *TimedtextFetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
