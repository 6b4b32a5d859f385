package ports

import (
	"context"
	"time"

	"TubeArticles/internal/domain"
)

// FeedSource lists recent videos of a channel, newest entries included.
type FeedSource interface {
	ListRecent(ctx context.Context, channel domain.Channel) ([]domain.Video, error)
}

// TranscriptFetcher returns the plain-text transcript of a video.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// ArticleGenerator turns a transcript into a structured article.
type ArticleGenerator interface {
	Generate(ctx context.Context, transcript string) (domain.Article, error)
}

// Throttle admits generation requests at a bounded rate. *rate.Limiter
// satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Publisher creates posts on a single WordPress site.
type Publisher interface {
	Publish(ctx context.Context, article domain.Article, videoURL string, categories []string) (domain.Post, error)
}

// PublisherFactory builds a Publisher bound to a site's credentials.
type PublisherFactory interface {
	ForSite(site domain.WordPressSite) (Publisher, error)
}

// DedupStore persists the global set of processed video IDs.
type DedupStore interface {
	Contains(ctx context.Context, videoID string) (bool, error)
	Add(ctx context.Context, videoID string) error
}

// StateStore is the system of record for projects, sites, channels and articles.
type StateStore interface {
	ListActiveProjects(ctx context.Context) ([]domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	CreateProject(ctx context.Context, name string) (domain.Project, error)
	SetProjectActive(ctx context.Context, id string, active bool) error
	DeleteProject(ctx context.Context, id string) error

	GetSite(ctx context.Context, projectID string) (domain.WordPressSite, error)
	CreateSite(ctx context.Context, site domain.WordPressSite) (domain.WordPressSite, error)

	ListChannels(ctx context.Context, projectID string) ([]domain.Channel, error)
	GetChannel(ctx context.Context, id string) (domain.Channel, error)
	CreateChannel(ctx context.Context, channel domain.Channel) (domain.Channel, error)
	SetChannelMonitoring(ctx context.Context, id string, active bool) error
	SetChannelAutoPublish(ctx context.Context, id string, autoPublish bool) error

	RecordArticle(ctx context.Context, article domain.PublishedArticle) error
	ListArticles(ctx context.Context, projectID string) ([]domain.PublishedArticle, error)
}

// ArticleArchive keeps a local copy of each generated article.
type ArticleArchive interface {
	Save(ctx context.Context, video domain.Video, article domain.Article) (string, error)
}

// Notifier delivers short outcome messages to operators.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// PipelineMetrics records per-video outcomes and poll results.
type PipelineMetrics interface {
	ObserveOutcome(projectID string, kind domain.OutcomeKind)
	ObservePoll(channelRef string, err error, duration time.Duration)
}

// Scheduler drives recurring jobs.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
