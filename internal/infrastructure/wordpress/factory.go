package wordpress

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
	"TubeArticles/internal/retry"
)

// Options are publish defaults shared by every site.
type Options struct {
	PostStatus string
	Timeout    time.Duration
	Retry      retry.Policy
	Client     *http.Client
}

// Factory builds per-site publishers.
type Factory struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

var _ ports.PublisherFactory = (*Factory)(nil)

// NewFactory shares one HTTP client between all sites.
func NewFactory(opts Options, logger *slog.Logger) *Factory {
	if opts.PostStatus == "" {
		opts.PostStatus = "draft"
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Factory{opts: opts, client: client, logger: logger}
}

// ForSite validates the site's credentials and returns a bound publisher.
func (f *Factory) ForSite(site domain.WordPressSite) (ports.Publisher, error) {
	return f.publisher(site)
}

func (f *Factory) publisher(site domain.WordPressSite) (*Publisher, error) {
	if site.URL == "" || site.Username == "" || site.AppPassword == "" {
		return nil, fmt.Errorf("%w: wordpress site %q is missing url or credentials", domain.ErrConfiguration, site.Name)
	}
	base, err := url.Parse(strings.TrimRight(site.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: wordpress site %q has invalid url %q", domain.ErrConfiguration, site.Name, site.URL)
	}

	var logger *slog.Logger
	if f.logger != nil {
		logger = f.logger.With("site", site.Name)
	}
	return &Publisher{
		apiURL:      base.String() + "/wp-json/wp/v2",
		username:    site.Username,
		appPassword: strings.ReplaceAll(site.AppPassword, " ", ""),
		postStatus:  f.opts.PostStatus,
		client:      f.client,
		policy:      f.opts.Retry,
		logger:      logger,
	}, nil
}
