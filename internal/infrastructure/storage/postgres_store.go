package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

//go:embed schema.sql
var schema string

const (
	projectColumns = "id, name, active, created_at"
	siteColumns    = "id, project_id, name, url, username, app_password, created_at"
	channelColumns = "id, project_id, channel_id, channel_name, source, auto_publish, monitoring_active, created_at"
	articleColumns = "id, project_id, channel_id, video_id, video_url, title, post_id, post_url, status, error, published_at"
)

// PostgresStore is the Postgres system of record for projects, sites,
// channels, published articles and processed video IDs.
type PostgresStore struct {
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var (
	_ ports.StateStore = (*PostgresStore)(nil)
	_ ports.DedupStore = (*PostgresStore)(nil)
)

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", domain.ErrStoreUnavailable, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", domain.ErrStoreUnavailable, err)
	}
	return db, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: apply schema: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ListActiveProjects returns every project with active = true.
func (s *PostgresStore) ListActiveProjects(ctx context.Context) ([]domain.Project, error) {
	return s.selectProjects(ctx, sq.Eq{"active": true})
}

// ListProjects returns every project.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.selectProjects(ctx, nil)
}

func (s *PostgresStore) selectProjects(ctx context.Context, where sq.Sqlizer) ([]domain.Project, error) {
	q := s.sb.Select(projectColumns).From("projects").OrderBy("created_at")
	if where != nil {
		q = q.Where(where)
	}
	var projects []domain.Project
	if err := s.selectAll(ctx, &projects, q); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetProject loads one project.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	q := s.sb.Select(projectColumns).From("projects").Where(sq.Eq{"id": id})
	if err := s.getOne(ctx, &p, q); err != nil {
		return domain.Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// CreateProject inserts an active project.
func (s *PostgresStore) CreateProject(ctx context.Context, name string) (domain.Project, error) {
	p := domain.Project{ID: uuid.NewString(), Name: name, Active: true, CreatedAt: s.now()}
	q := s.sb.Insert("projects").
		Columns("id", "name", "active", "created_at").
		Values(p.ID, p.Name, p.Active, p.CreatedAt)
	if _, err := s.exec(ctx, q); err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// SetProjectActive toggles the activation flag.
func (s *PostgresStore) SetProjectActive(ctx context.Context, id string, active bool) error {
	q := s.sb.Update("projects").Set("active", active).Where(sq.Eq{"id": id})
	if err := s.execOne(ctx, q); err != nil {
		return fmt.Errorf("set project %s active: %w", id, err)
	}
	return nil
}

// DeleteProject removes a project; sites, channels and articles cascade.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	q := s.sb.Delete("projects").Where(sq.Eq{"id": id})
	if err := s.execOne(ctx, q); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

// GetSite returns the first WordPress site of a project.
func (s *PostgresStore) GetSite(ctx context.Context, projectID string) (domain.WordPressSite, error) {
	var site domain.WordPressSite
	q := s.sb.Select(siteColumns).From("wordpress_sites").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("created_at").
		Limit(1)
	if err := s.getOne(ctx, &site, q); err != nil {
		return domain.WordPressSite{}, fmt.Errorf("get site for project %s: %w", projectID, err)
	}
	return site, nil
}

// CreateSite inserts a WordPress site.
func (s *PostgresStore) CreateSite(ctx context.Context, site domain.WordPressSite) (domain.WordPressSite, error) {
	site.ID = uuid.NewString()
	site.CreatedAt = s.now()
	q := s.sb.Insert("wordpress_sites").
		Columns("id", "project_id", "name", "url", "username", "app_password", "created_at").
		Values(site.ID, site.ProjectID, site.Name, site.URL, site.Username, site.AppPassword, site.CreatedAt)
	if _, err := s.exec(ctx, q); err != nil {
		return domain.WordPressSite{}, fmt.Errorf("create site: %w", err)
	}
	return site, nil
}

// ListChannels returns the channels of a project in creation order.
func (s *PostgresStore) ListChannels(ctx context.Context, projectID string) ([]domain.Channel, error) {
	var channels []domain.Channel
	q := s.sb.Select(channelColumns).From("channels").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("created_at")
	if err := s.selectAll(ctx, &channels, q); err != nil {
		return nil, fmt.Errorf("list channels for project %s: %w", projectID, err)
	}
	return channels, nil
}

// GetChannel loads one channel by row ID.
func (s *PostgresStore) GetChannel(ctx context.Context, id string) (domain.Channel, error) {
	var ch domain.Channel
	q := s.sb.Select(channelColumns).From("channels").Where(sq.Eq{"id": id})
	if err := s.getOne(ctx, &ch, q); err != nil {
		return domain.Channel{}, fmt.Errorf("get channel %s: %w", id, err)
	}
	return ch, nil
}

// CreateChannel inserts a channel row.
func (s *PostgresStore) CreateChannel(ctx context.Context, ch domain.Channel) (domain.Channel, error) {
	ch.ID = uuid.NewString()
	ch.CreatedAt = s.now()
	if ch.Source == "" {
		ch.Source = domain.SourceRSS
	}
	q := s.sb.Insert("channels").
		Columns("id", "project_id", "channel_id", "channel_name", "source", "auto_publish", "monitoring_active", "created_at").
		Values(ch.ID, ch.ProjectID, ch.ExternalID, ch.Name, string(ch.Source), ch.AutoPublish, ch.MonitoringActive, ch.CreatedAt)
	if _, err := s.exec(ctx, q); err != nil {
		return domain.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	return ch, nil
}

// SetChannelMonitoring persists the monitoring intent.
func (s *PostgresStore) SetChannelMonitoring(ctx context.Context, id string, active bool) error {
	q := s.sb.Update("channels").Set("monitoring_active", active).Where(sq.Eq{"id": id})
	if err := s.execOne(ctx, q); err != nil {
		return fmt.Errorf("set channel %s monitoring: %w", id, err)
	}
	return nil
}

// SetChannelAutoPublish persists the auto-publish flag.
func (s *PostgresStore) SetChannelAutoPublish(ctx context.Context, id string, autoPublish bool) error {
	q := s.sb.Update("channels").Set("auto_publish", autoPublish).Where(sq.Eq{"id": id})
	if err := s.execOne(ctx, q); err != nil {
		return fmt.Errorf("set channel %s auto publish: %w", id, err)
	}
	return nil
}

// RecordArticle appends a publication record.
func (s *PostgresStore) RecordArticle(ctx context.Context, a domain.PublishedArticle) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = s.now()
	}
	q := s.sb.Insert("published_articles").
		Columns("id", "project_id", "channel_id", "video_id", "video_url", "title", "post_id", "post_url", "status", "error", "published_at").
		Values(a.ID, a.ProjectID, a.ChannelID, a.VideoID, a.VideoURL, a.Title, a.PostID, a.PostURL, string(a.Status), a.Error, a.PublishedAt)
	if _, err := s.exec(ctx, q); err != nil {
		return fmt.Errorf("record article %s: %w", a.VideoID, err)
	}
	return nil
}

// ListArticles returns a project's publication records, newest first.
func (s *PostgresStore) ListArticles(ctx context.Context, projectID string) ([]domain.PublishedArticle, error) {
	var articles []domain.PublishedArticle
	q := s.sb.Select(articleColumns).From("published_articles").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("published_at DESC")
	if err := s.selectAll(ctx, &articles, q); err != nil {
		return nil, fmt.Errorf("list articles for project %s: %w", projectID, err)
	}
	return articles, nil
}

// Contains reports whether videoID is in the processed set.
func (s *PostgresStore) Contains(ctx context.Context, videoID string) (bool, error) {
	seen, err := s.AlreadyProcessed(ctx, []string{videoID})
	if err != nil {
		return false, err
	}
	return seen[videoID], nil
}

// AlreadyProcessed returns the subset of ids present in the processed set.
func (s *PostgresStore) AlreadyProcessed(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var found []string
	query := `SELECT video_id FROM processed_videos WHERE video_id = ANY($1)`
	if err := s.db.SelectContext(ctx, &found, query, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("%w: query processed: %w", domain.ErrStoreUnavailable, err)
	}
	for _, id := range found {
		result[id] = true
	}
	return result, nil
}

// Add records videoID; duplicates are ignored.
func (s *PostgresStore) Add(ctx context.Context, videoID string) error {
	q := s.sb.Insert("processed_videos").
		Columns("video_id", "processed_at").
		Values(videoID, s.now()).
		Suffix("ON CONFLICT (video_id) DO NOTHING")
	if _, err := s.exec(ctx, q); err != nil {
		return fmt.Errorf("mark processed %s: %w", videoID, err)
	}
	return nil
}

func (s *PostgresStore) selectAll(ctx context.Context, dest any, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return translate(err)
	}
	return nil
}

func (s *PostgresStore) getOne(ctx context.Context, dest any, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := s.db.GetContext(ctx, dest, query, args...); err != nil {
		return translate(err)
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, q sq.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// execOne fails with ErrNotFound when no row was affected.
func (s *PostgresStore) execOne(ctx context.Context, q sq.Sqlizer) error {
	res, err := s.exec(ctx, q)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", domain.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
