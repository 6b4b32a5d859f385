package domain

import "time"

// Video is a single feed entry discovered for a channel.
type Video struct {
	ID          string
	URL         string
	Title       string
	ChannelID   string
	ChannelName string
	PublishedAt time.Time
}

// Article is the structured output of the article generator.
type Article struct {
	Title           string
	MetaDescription string
	BodyHTML        string
}

// Post references an article published on a WordPress site.
type Post struct {
	ID  string
	URL string
}

// ArticleStatus enumerates persisted publication results.
type ArticleStatus string

const (
	ArticlePublished ArticleStatus = "published"
	ArticleFailed    ArticleStatus = "failed"
)

// PublishedArticle is the append-only audit record of a publish attempt.
type PublishedArticle struct {
	ID          string        `db:"id"`
	ProjectID   string        `db:"project_id"`
	ChannelID   string        `db:"channel_id"`
	VideoID     string        `db:"video_id"`
	VideoURL    string        `db:"video_url"`
	Title       string        `db:"title"`
	PostID      string        `db:"post_id"`
	PostURL     string        `db:"post_url"`
	Status      ArticleStatus `db:"status"`
	Error       string        `db:"error"`
	PublishedAt time.Time     `db:"published_at"`
}

// OutcomeKind enumerates pipeline milestones for a single video.
type OutcomeKind string

const (
	// OutcomePublished means every stage succeeded.
	OutcomePublished OutcomeKind = "published"
	// OutcomeGenerated means the article was generated but auto-publish is off.
	OutcomeGenerated OutcomeKind = "generated"
	// OutcomePartial means the article was generated but publishing failed.
	OutcomePartial OutcomeKind = "partial"
	// OutcomeSkipped means the video can never produce an article (no transcript etc).
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed means article generation failed.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome summarises one pipeline run for a video.
type Outcome struct {
	Kind      OutcomeKind
	VideoID   string
	VideoURL  string
	Title     string
	Post      Post
	Err       error
	Processed bool
}
