// Package monitor runs one polling loop per YouTube channel and keeps the
// table of live loops.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// VideoHandler runs the per-video stages and reports what happened.
// It owns marking the video as processed.
type VideoHandler interface {
	HandleVideo(ctx context.Context, channel domain.Channel, video domain.Video) domain.Outcome
}

// Spec binds a channel row to the handler that processes its videos.
type Spec struct {
	Channel domain.Channel
	Handler VideoHandler
}

// Settings tunes the loop timing.
type Settings struct {
	Lookback     time.Duration
	PollInterval time.Duration
	ErrorBackoff time.Duration
	FeedTimeout  time.Duration
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		Lookback:     48 * time.Hour,
		PollInterval: 30 * time.Minute,
		ErrorBackoff: 5 * time.Minute,
		FeedTimeout:  30 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.Lookback <= 0 {
		s.Lookback = def.Lookback
	}
	if s.PollInterval <= 0 {
		s.PollInterval = def.PollInterval
	}
	if s.ErrorBackoff <= 0 {
		s.ErrorBackoff = def.ErrorBackoff
	}
	if s.FeedTimeout <= 0 {
		s.FeedTimeout = def.FeedTimeout
	}
	return s
}

// Deps are shared by every monitor of a registry.
type Deps struct {
	Feed     ports.FeedSource
	Dedup    ports.DedupStore
	Metrics  ports.PipelineMetrics
	Settings Settings
	Logger   *slog.Logger
}

// HandleInfo is a point-in-time view of a monitor.
type HandleInfo struct {
	ChannelRef string
	RunID      string
	Running    bool
	StartedAt  time.Time
	LastPoll   time.Time
}

// Monitor polls a single channel until stopped. A Monitor may be started
// again after Stop; the new run waits for the previous loop to exit first.
type Monitor struct {
	deps Deps
	now  func() time.Time

	mu        sync.Mutex
	spec      Spec
	running   bool
	runID     string
	startedAt time.Time
	lastPoll  time.Time
	cancel    context.CancelFunc
	done      <-chan struct{}
}

// New builds a stopped monitor.
func New(spec Spec, deps Deps) *Monitor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Settings = deps.Settings.withDefaults()
	return &Monitor{deps: deps, spec: spec, now: time.Now}
}

// after makes the first run of a fresh monitor wait for done, the exit of a
// loop for the same channel that is still draining.
func (m *Monitor) after(done <-chan struct{}) {
	m.mu.Lock()
	if m.done == nil {
		m.done = done
	}
	m.mu.Unlock()
}

// Ref is the registry key of the monitored channel.
func (m *Monitor) Ref() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spec.Channel.ID
}

// SetSpec replaces the channel snapshot and handler used by later polls.
func (m *Monitor) SetSpec(spec Spec) {
	m.mu.Lock()
	m.spec = spec
	m.mu.Unlock()
}

// Start spawns the loop. It reports false when a run is already active.
func (m *Monitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	prev := m.done
	done := make(chan struct{})

	m.running = true
	m.runID = uuid.NewString()
	m.startedAt = m.now()
	m.cancel = cancel
	m.done = done

	go m.run(runCtx, m.runID, prev, done)
	return true
}

// Stop signals the loop to exit and returns without waiting. It reports
// false when no run is active.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.running = false
	m.cancel()
	return true
}

// Running reports whether a run is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Done is closed once the latest run, and every run before it, has exited.
// It is nil for a monitor that was never started.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Info snapshots the monitor state.
func (m *Monitor) Info() HandleInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return HandleInfo{
		ChannelRef: m.spec.Channel.ID,
		RunID:      m.runID,
		Running:    m.running,
		StartedAt:  m.startedAt,
		LastPoll:   m.lastPoll,
	}
}

func (m *Monitor) run(ctx context.Context, runID string, prev <-chan struct{}, done chan struct{}) {
	defer func() {
		if prev != nil {
			<-prev
		}
		m.mu.Lock()
		if m.runID == runID && m.running {
			m.running = false
			m.cancel()
		}
		m.mu.Unlock()
		close(done)
	}()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	logger := m.deps.Logger.With("channel", m.Ref(), "run_id", runID)
	logger.Info("monitor started")
	defer logger.Info("monitor stopped")

	var lastSuccess time.Time
	for {
		started := m.now()
		cutoff := started.Add(-m.deps.Settings.Lookback)
		if !lastSuccess.IsZero() {
			cutoff = lastSuccess.Add(-m.deps.Settings.Lookback)
		}

		err := m.pollSafely(ctx, logger, cutoff)
		if ctx.Err() != nil {
			return
		}

		wait := m.deps.Settings.PollInterval
		if err != nil {
			logger.Warn("poll failed", "error", err, "kind", domain.Classify(err).String(), "retry_in", m.deps.Settings.ErrorBackoff)
			wait = m.deps.Settings.ErrorBackoff
		} else {
			lastSuccess = started
			m.mu.Lock()
			m.lastPoll = started
			m.mu.Unlock()
		}
		if m.deps.Metrics != nil {
			m.deps.Metrics.ObservePoll(m.Ref(), err, m.now().Sub(started))
		}

		if !sleep(ctx, wait) {
			return
		}
	}
}

func (m *Monitor) pollSafely(ctx context.Context, logger *slog.Logger, cutoff time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panicked: %v", r)
		}
	}()
	return m.poll(ctx, logger, cutoff)
}

func (m *Monitor) poll(ctx context.Context, logger *slog.Logger, cutoff time.Time) error {
	m.mu.Lock()
	spec := m.spec
	m.mu.Unlock()

	feedCtx, cancel := context.WithTimeout(ctx, m.deps.Settings.FeedTimeout)
	videos, err := m.deps.Feed.ListRecent(feedCtx, spec.Channel)
	cancel()
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}

	candidates := Candidates(videos, cutoff)
	logger.Debug("poll", "entries", len(videos), "candidates", len(candidates), "cutoff", cutoff)

	for _, video := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		seen, err := m.deps.Dedup.Contains(ctx, video.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("check processed %s: %w", video.ID, err)
		}
		if seen {
			continue
		}

		// Stages finish even when Stop arrives mid-video; each stage carries its own timeout.
		outcome := spec.Handler.HandleVideo(context.WithoutCancel(ctx), spec.Channel, video)
		logOutcome(logger, outcome)
	}
	return nil
}

// Candidates keeps videos published at or after cutoff, oldest first.
func Candidates(videos []domain.Video, cutoff time.Time) []domain.Video {
	out := make([]domain.Video, 0, len(videos))
	for _, v := range videos {
		if v.ID == "" || v.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.Before(out[j].PublishedAt) })
	return out
}

func logOutcome(logger *slog.Logger, o domain.Outcome) {
	attrs := []any{"video_id", o.VideoID, "outcome", string(o.Kind), "processed", o.Processed}
	switch {
	case o.Err == nil:
		logger.Info("video handled", attrs...)
	case errors.Is(o.Err, domain.ErrPublish) || o.Kind == domain.OutcomeSkipped:
		logger.Warn("video handled", append(attrs, "error", o.Err)...)
	default:
		logger.Error("video handled", append(attrs, "error", o.Err)...)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
