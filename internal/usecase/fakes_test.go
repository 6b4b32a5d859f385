package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

type fakeTranscripts struct {
	mu    sync.Mutex
	errs  map[string]error
	calls map[string]int
}

func newFakeTranscripts() *fakeTranscripts {
	return &fakeTranscripts{errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeTranscripts) Fetch(_ context.Context, videoID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[videoID]++
	if err := f.errs[videoID]; err != nil {
		return "", err
	}
	return "transcript of " + videoID, nil
}

func (f *fakeTranscripts) Calls(videoID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[videoID]
}

type fakeGenerator struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, transcript string) (domain.Article, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return domain.Article{}, g.err
	}
	return domain.Article{Title: "Article: " + transcript, MetaDescription: "meta", BodyHTML: "<p>body</p>"}, nil
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakePublisher struct {
	mu         sync.Mutex
	err        error
	calls      int
	categories []string
}

func (p *fakePublisher) Publish(_ context.Context, _ domain.Article, _ string, categories []string) (domain.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.categories = categories
	if p.err != nil {
		return domain.Post{}, p.err
	}
	return domain.Post{ID: fmt.Sprint(100 + p.calls), URL: fmt.Sprintf("https://blog.example/?p=%d", 100+p.calls)}, nil
}

type fakeFactory struct {
	publisher *fakePublisher
}

func (f *fakeFactory) ForSite(site domain.WordPressSite) (ports.Publisher, error) {
	if site.URL == "" {
		return nil, fmt.Errorf("%w: missing url", domain.ErrConfiguration)
	}
	return f.publisher, nil
}

type memDedup struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newMemDedup() *memDedup { return &memDedup{ids: map[string]bool{}} }

func (d *memDedup) Contains(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ids[id], nil
}

func (d *memDedup) Add(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[id] = true
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []domain.OutcomeKind
}

func (m *fakeMetrics) ObserveOutcome(_ string, kind domain.OutcomeKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, kind)
}

func (m *fakeMetrics) ObservePoll(string, error, time.Duration) {}

type staticFeed struct {
	mu     sync.Mutex
	videos []domain.Video
	calls  int
}

func (f *staticFeed) ListRecent(_ context.Context, _ domain.Channel) ([]domain.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]domain.Video(nil), f.videos...), nil
}

func (f *staticFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
