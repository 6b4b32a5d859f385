package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// MemoryStore is a process-local StateStore used when no database is
// configured and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	projects map[string]domain.Project
	sites    map[string]domain.WordPressSite
	channels map[string]domain.Channel
	articles []domain.PublishedArticle
	seq      map[string]int
	next     int
}

var _ ports.StateStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		projects: map[string]domain.Project{},
		sites:    map[string]domain.WordPressSite{},
		channels: map[string]domain.Channel{},
		seq:      map[string]int{},
	}
}

func (m *MemoryStore) order(id string) {
	m.next++
	m.seq[id] = m.next
}

// ListActiveProjects returns every active project in creation order.
func (m *MemoryStore) ListActiveProjects(_ context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projectsLocked(true), nil
}

// ListProjects returns every project in creation order.
func (m *MemoryStore) ListProjects(_ context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projectsLocked(false), nil
}

func (m *MemoryStore) projectsLocked(activeOnly bool) []domain.Project {
	out := make([]domain.Project, 0, len(m.projects))
	for _, p := range m.projects {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	return out
}

// GetProject loads one project.
func (m *MemoryStore) GetProject(_ context.Context, id string) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// CreateProject inserts an active project.
func (m *MemoryStore) CreateProject(_ context.Context, name string) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Project{ID: uuid.NewString(), Name: name, Active: true, CreatedAt: m.now()}
	m.projects[p.ID] = p
	m.order(p.ID)
	return p, nil
}

// SetProjectActive toggles the activation flag.
func (m *MemoryStore) SetProjectActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return fmt.Errorf("set project %s active: %w", id, domain.ErrNotFound)
	}
	p.Active = active
	m.projects[id] = p
	return nil
}

// DeleteProject removes a project together with its sites, channels and articles.
func (m *MemoryStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	delete(m.projects, id)
	for key, site := range m.sites {
		if site.ProjectID == id {
			delete(m.sites, key)
		}
	}
	for key, ch := range m.channels {
		if ch.ProjectID == id {
			delete(m.channels, key)
		}
	}
	kept := m.articles[:0]
	for _, a := range m.articles {
		if a.ProjectID != id {
			kept = append(kept, a)
		}
	}
	m.articles = kept
	return nil
}

// GetSite returns the first WordPress site of a project.
func (m *MemoryStore) GetSite(_ context.Context, projectID string) (domain.WordPressSite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		best  domain.WordPressSite
		found bool
	)
	for _, site := range m.sites {
		if site.ProjectID != projectID {
			continue
		}
		if !found || m.seq[site.ID] < m.seq[best.ID] {
			best, found = site, true
		}
	}
	if !found {
		return domain.WordPressSite{}, fmt.Errorf("get site for project %s: %w", projectID, domain.ErrNotFound)
	}
	return best, nil
}

// CreateSite inserts a WordPress site.
func (m *MemoryStore) CreateSite(_ context.Context, site domain.WordPressSite) (domain.WordPressSite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[site.ProjectID]; !ok {
		return domain.WordPressSite{}, fmt.Errorf("create site: project %s: %w", site.ProjectID, domain.ErrNotFound)
	}
	site.ID = uuid.NewString()
	site.CreatedAt = m.now()
	m.sites[site.ID] = site
	m.order(site.ID)
	return site, nil
}

// ListChannels returns the channels of a project in creation order.
func (m *MemoryStore) ListChannels(_ context.Context, projectID string) ([]domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Channel, 0)
	for _, ch := range m.channels {
		if ch.ProjectID == projectID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	return out, nil
}

// GetChannel loads one channel by row ID.
func (m *MemoryStore) GetChannel(_ context.Context, id string) (domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return domain.Channel{}, fmt.Errorf("get channel %s: %w", id, domain.ErrNotFound)
	}
	return ch, nil
}

// CreateChannel inserts a channel row.
func (m *MemoryStore) CreateChannel(_ context.Context, ch domain.Channel) (domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[ch.ProjectID]; !ok {
		return domain.Channel{}, fmt.Errorf("create channel: project %s: %w", ch.ProjectID, domain.ErrNotFound)
	}
	ch.ID = uuid.NewString()
	ch.CreatedAt = m.now()
	if ch.Source == "" {
		ch.Source = domain.SourceRSS
	}
	m.channels[ch.ID] = ch
	m.order(ch.ID)
	return ch, nil
}

// SetChannelMonitoring persists the monitoring intent.
func (m *MemoryStore) SetChannelMonitoring(_ context.Context, id string, active bool) error {
	return m.updateChannel(id, func(ch *domain.Channel) { ch.MonitoringActive = active })
}

// SetChannelAutoPublish persists the auto-publish flag.
func (m *MemoryStore) SetChannelAutoPublish(_ context.Context, id string, autoPublish bool) error {
	return m.updateChannel(id, func(ch *domain.Channel) { ch.AutoPublish = autoPublish })
}

func (m *MemoryStore) updateChannel(id string, apply func(*domain.Channel)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return fmt.Errorf("update channel %s: %w", id, domain.ErrNotFound)
	}
	apply(&ch)
	m.channels[id] = ch
	return nil
}

// RecordArticle appends a publication record.
func (m *MemoryStore) RecordArticle(_ context.Context, a domain.PublishedArticle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = m.now()
	}
	m.articles = append(m.articles, a)
	return nil
}

// ListArticles returns a project's publication records, newest first.
func (m *MemoryStore) ListArticles(_ context.Context, projectID string) ([]domain.PublishedArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PublishedArticle, 0)
	for i := len(m.articles) - 1; i >= 0; i-- {
		if m.articles[i].ProjectID == projectID {
			out = append(out, m.articles[i])
		}
	}
	return out, nil
}
