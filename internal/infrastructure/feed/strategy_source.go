package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// Lister is a single listing strategy (Atom feed, Data API search, ...).
type Lister interface {
	ports.FeedSource
	Name() domain.SourceKind
}

// Registry keeps a mapping from source kinds to their listers.
type Registry struct {
	mu      sync.RWMutex
	listers map[domain.SourceKind]Lister
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{listers: map[domain.SourceKind]Lister{}}
}

// Register adds or replaces a lister implementation.
func (r *Registry) Register(lister Lister) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listers == nil {
		r.listers = map[domain.SourceKind]Lister{}
	}
	r.listers[lister.Name()] = lister
}

// Resolve returns a lister by kind or an error if it is absent.
func (r *Registry) Resolve(kind domain.SourceKind) (Lister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if lister, ok := r.listers[kind]; ok {
		return lister, nil
	}
	return nil, fmt.Errorf("%w: source %q is not registered", domain.ErrConfiguration, kind)
}

// StrategySource implements FeedSource by dispatching on the channel's source kind.
type StrategySource struct {
	registry *Registry
	fallback domain.SourceKind
	logger   *slog.Logger
}

var _ ports.FeedSource = (*StrategySource)(nil)

// NewStrategySource wires the lister registry. Channels without a source kind use fallback.
func NewStrategySource(reg *Registry, fallback domain.SourceKind, log *slog.Logger) *StrategySource {
	if fallback == "" {
		fallback = domain.SourceRSS
	}
	return &StrategySource{registry: reg, fallback: fallback, logger: log}
}

// ListRecent resolves the channel's lister and delegates to it.
func (s *StrategySource) ListRecent(ctx context.Context, channel domain.Channel) ([]domain.Video, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: feed registry is not configured", domain.ErrConfiguration)
	}

	kind := channel.Source
	if kind == "" {
		kind = s.fallback
	}
	lister, err := s.registry.Resolve(kind)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", channel.ExternalID, err)
	}

	s.debug("list channel", "channel", channel.ExternalID, "source", kind)
	videos, err := lister.ListRecent(ctx, channel)
	if err != nil {
		return nil, err
	}

	for i := range videos {
		if videos[i].ChannelName == "" {
			videos[i].ChannelName = channel.Name
		}
	}
	return videos, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
