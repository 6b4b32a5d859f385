package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/monitor"
	"TubeArticles/internal/ports"
)

// StageTimeouts bound each external call made for a video.
type StageTimeouts struct {
	Transcript time.Duration
	Generate   time.Duration
	Publish    time.Duration
}

// PipelineDeps wires all driven adapters into the per-video pipeline.
// Throttle, Archive, Notifier and Metrics are optional.
type PipelineDeps struct {
	Transcripts ports.TranscriptFetcher
	Generator   ports.ArticleGenerator
	Throttle    ports.Throttle
	Dedup       ports.DedupStore
	Store       ports.StateStore
	Archive     ports.ArticleArchive
	Notifier    ports.Notifier
	Metrics     ports.PipelineMetrics
	Logger      *slog.Logger

	Timeouts                      StageTimeouts
	DefaultCategory               string
	MarkProcessedOnPublishFailure bool
}

// Pipeline implements transcript → article → publish → persist for one video.
type Pipeline struct {
	transcripts ports.TranscriptFetcher
	generator   ports.ArticleGenerator
	throttle    ports.Throttle
	dedup       ports.DedupStore
	store       ports.StateStore
	archive     ports.ArticleArchive
	notifier    ports.Notifier
	metrics     ports.PipelineMetrics
	logger      *slog.Logger

	timeouts        StageTimeouts
	defaultCategory string
	markOnFailure   bool
}

// NewPipeline constructs the per-video component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeouts := deps.Timeouts
	if timeouts.Transcript <= 0 {
		timeouts.Transcript = 30 * time.Second
	}
	if timeouts.Generate <= 0 {
		timeouts.Generate = 60 * time.Second
	}
	if timeouts.Publish <= 0 {
		timeouts.Publish = 30 * time.Second
	}
	return &Pipeline{
		transcripts:     deps.Transcripts,
		generator:       deps.Generator,
		throttle:        deps.Throttle,
		dedup:           deps.Dedup,
		store:           deps.Store,
		archive:         deps.Archive,
		notifier:        deps.Notifier,
		metrics:         deps.Metrics,
		logger:          logger.With("component", "pipeline"),
		timeouts:        timeouts,
		defaultCategory: deps.DefaultCategory,
		markOnFailure:   deps.MarkProcessedOnPublishFailure,
	}
}

// ProjectHandler binds the pipeline to one project and its publisher.
type ProjectHandler struct {
	pipeline  *Pipeline
	project   domain.Project
	publisher ports.Publisher
}

var _ monitor.VideoHandler = (*ProjectHandler)(nil)

// ForProject returns the handler monitors of project use.
func (p *Pipeline) ForProject(project domain.Project, publisher ports.Publisher) *ProjectHandler {
	return &ProjectHandler{pipeline: p, project: project, publisher: publisher}
}

// HandleVideo implements monitor.VideoHandler.
func (h *ProjectHandler) HandleVideo(ctx context.Context, channel domain.Channel, video domain.Video) domain.Outcome {
	return h.pipeline.Process(ctx, h.project, h.publisher, channel, video)
}

// Process runs every stage for video and records the result. Transcript and
// generation failures mark the video processed; publish failures do so only
// when configured.
func (p *Pipeline) Process(ctx context.Context, project domain.Project, publisher ports.Publisher, channel domain.Channel, video domain.Video) domain.Outcome {
	logger := p.logger.With("project_id", project.ID, "channel", channel.ExternalID, "video_id", video.ID)
	outcome := domain.Outcome{VideoID: video.ID, VideoURL: video.URL, Title: video.Title}

	outcome = p.run(ctx, logger, project, publisher, channel, video, outcome)

	if p.metrics != nil {
		p.metrics.ObserveOutcome(project.ID, outcome.Kind)
	}
	p.notify(ctx, logger, project, outcome)
	return outcome
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, project domain.Project, publisher ports.Publisher, channel domain.Channel, video domain.Video, outcome domain.Outcome) domain.Outcome {
	transcript, err := p.fetchTranscript(ctx, video.ID)
	if err != nil {
		outcome.Kind = domain.OutcomeFailed
		if domain.IsPermanentVideo(err) {
			outcome.Kind = domain.OutcomeSkipped
		}
		outcome.Err = fmt.Errorf("fetch transcript: %w", err)
		outcome.Processed = p.markProcessed(ctx, logger, video.ID)
		return outcome
	}
	logger.Debug("transcript fetched", "chars", len(transcript))

	// Queueing for a slot is not part of the generation timeout. Losing the
	// slot leaves the video unmarked so the next poll retries it.
	if p.throttle != nil {
		if err := p.throttle.Wait(ctx); err != nil {
			outcome.Kind = domain.OutcomeFailed
			outcome.Err = fmt.Errorf("wait for generation slot: %w: %w", domain.ErrRateLimited, err)
			return outcome
		}
	}

	article, err := p.generate(ctx, transcript)
	if err != nil {
		outcome.Kind = domain.OutcomeFailed
		outcome.Err = fmt.Errorf("generate article: %w", err)
		outcome.Processed = p.markProcessed(ctx, logger, video.ID)
		return outcome
	}
	outcome.Title = article.Title

	if p.archive != nil {
		if path, err := p.archive.Save(ctx, video, article); err != nil {
			logger.Warn("archive article failed", "error", err)
		} else {
			logger.Debug("article archived", "path", path)
		}
	}

	if !channel.AutoPublish {
		outcome.Kind = domain.OutcomeGenerated
		outcome.Processed = p.markProcessed(ctx, logger, video.ID)
		return outcome
	}

	record := domain.PublishedArticle{
		ProjectID: project.ID,
		ChannelID: channel.ID,
		VideoID:   video.ID,
		VideoURL:  video.URL,
		Title:     article.Title,
	}

	post, err := p.publish(ctx, publisher, article, video.URL, p.categories(channel, video))
	if err != nil {
		outcome.Kind = domain.OutcomePartial
		outcome.Err = fmt.Errorf("publish article: %w", err)
		record.Status = domain.ArticleFailed
		record.Error = err.Error()
		p.record(ctx, logger, record)
		if p.markOnFailure {
			outcome.Processed = p.markProcessed(ctx, logger, video.ID)
		}
		return outcome
	}

	outcome.Kind = domain.OutcomePublished
	outcome.Post = post
	record.Status = domain.ArticlePublished
	record.PostID = post.ID
	record.PostURL = post.URL
	p.record(ctx, logger, record)
	outcome.Processed = p.markProcessed(ctx, logger, video.ID)
	return outcome
}

func (p *Pipeline) fetchTranscript(ctx context.Context, videoID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Transcript)
	defer cancel()
	return p.transcripts.Fetch(ctx, videoID)
}

func (p *Pipeline) generate(ctx context.Context, transcript string) (domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Generate)
	defer cancel()
	return p.generator.Generate(ctx, transcript)
}

func (p *Pipeline) publish(ctx context.Context, publisher ports.Publisher, article domain.Article, videoURL string, categories []string) (domain.Post, error) {
	if publisher == nil {
		return domain.Post{}, fmt.Errorf("%w: %w: no publisher for project", domain.ErrPublish, domain.ErrConfiguration)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Publish)
	defer cancel()
	return publisher.Publish(ctx, article, videoURL, categories)
}

// categories returns the channel name followed by the default category.
func (p *Pipeline) categories(channel domain.Channel, video domain.Video) []string {
	name := video.ChannelName
	if name == "" {
		name = channel.Name
	}
	out := make([]string, 0, 2)
	for _, c := range []string{name, p.defaultCategory} {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if len(out) > 0 && strings.EqualFold(out[0], c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// markProcessed reports whether the ID reached the dedup store.
func (p *Pipeline) markProcessed(ctx context.Context, logger *slog.Logger, videoID string) bool {
	if err := p.dedup.Add(ctx, videoID); err != nil {
		logger.Error("mark processed failed", "error", err)
		return false
	}
	return true
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, record domain.PublishedArticle) {
	if p.store == nil {
		return
	}
	if err := p.store.RecordArticle(ctx, record); err != nil {
		logger.Error("record article failed", "status", string(record.Status), "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, project domain.Project, outcome domain.Outcome) {
	if p.notifier == nil || outcome.Kind == domain.OutcomeSkipped {
		return
	}
	if err := p.notifier.Notify(ctx, outcomeMessage(project.Name, outcome)); err != nil {
		logger.Warn("notify failed", "error", err)
	}
}

func outcomeMessage(projectName string, o domain.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", projectName, o.Kind, o.VideoURL)
	if o.Title != "" {
		fmt.Fprintf(&b, "\n%s", o.Title)
	}
	if o.Post.URL != "" {
		fmt.Fprintf(&b, "\n%s", o.Post.URL)
	}
	if o.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v", o.Err)
	}
	return b.String()
}
