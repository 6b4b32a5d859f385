package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/monitor"
	"TubeArticles/internal/ports"
)

// OrchestratorDeps wires the orchestrator.
type OrchestratorDeps struct {
	Store      ports.StateStore
	Registry   *monitor.Registry
	Publishers ports.PublisherFactory
	Pipeline   *Pipeline
	// ParseChannelID normalises user input (bare ID or channel URL).
	ParseChannelID func(string) (string, error)
	// Passive orchestrators persist intent but never start loops; used by
	// one-shot admin commands while a separate process runs the monitors.
	Passive bool
	Logger  *slog.Logger
}

type projectEntry struct {
	project  domain.Project
	site     domain.WordPressSite
	handler  *ProjectHandler
	channels map[string]struct{}
}

// Orchestrator owns the resident projects and drives channel monitors
// according to the durable state in the store.
type Orchestrator struct {
	store      ports.StateStore
	registry   *monitor.Registry
	publishers ports.PublisherFactory
	pipeline   *Pipeline
	parseID    func(string) (string, error)
	passive    bool
	logger     *slog.Logger

	mu       sync.Mutex
	projects map[string]*projectEntry
}

// NewOrchestrator builds an orchestrator with no resident projects.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parse := deps.ParseChannelID
	if parse == nil {
		parse = func(s string) (string, error) { return strings.TrimSpace(s), nil }
	}
	return &Orchestrator{
		store:      deps.Store,
		registry:   deps.Registry,
		publishers: deps.Publishers,
		pipeline:   deps.Pipeline,
		parseID:    parse,
		passive:    deps.Passive,
		logger:     logger.With("component", "orchestrator"),
		projects:   make(map[string]*projectEntry),
	}
}

// LoadActiveProjects makes every active project with a WordPress site
// resident. Projects without a usable site are skipped.
func (o *Orchestrator) LoadActiveProjects(ctx context.Context) error {
	projects, err := o.store.ListActiveProjects(ctx)
	if err != nil {
		return fmt.Errorf("list active projects: %w", err)
	}

	loaded := 0
	for _, project := range projects {
		if _, err := o.loadProject(ctx, project); err != nil {
			o.logger.Warn("project skipped", "project_id", project.ID, "name", project.Name, "error", err)
			continue
		}
		loaded++
	}
	o.logger.Info("projects loaded", "active", len(projects), "loaded", loaded)
	return nil
}

// StartAll loads active projects and starts their monitors.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	if err := o.LoadActiveProjects(ctx); err != nil {
		return err
	}

	total := 0
	for _, id := range o.residentIDs() {
		n, err := o.StartProjectMonitoring(ctx, id)
		if err != nil {
			o.logger.Warn("start project failed", "project_id", id, "error", err)
			continue
		}
		total += n
	}
	o.logger.Info("monitoring started", "channels", total)
	return nil
}

// StartProjectMonitoring starts every monitoring-active channel of a resident
// project and returns how many loops were started.
func (o *Orchestrator) StartProjectMonitoring(ctx context.Context, projectID string) (int, error) {
	entry, err := o.resident(projectID)
	if err != nil {
		return 0, err
	}

	channels, err := o.store.ListChannels(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}

	started := 0
	for _, ch := range channels {
		if !ch.MonitoringActive {
			continue
		}
		if o.startChannel(ctx, entry, ch) {
			started++
		}
	}
	return started, nil
}

// StopProjectMonitoring stops every loop started for a resident project.
func (o *Orchestrator) StopProjectMonitoring(projectID string) (int, error) {
	o.mu.Lock()
	entry, ok := o.projects[projectID]
	var refs []string
	if ok {
		refs = make([]string, 0, len(entry.channels))
		for ref := range entry.channels {
			refs = append(refs, ref)
		}
	}
	o.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("project %s: %w", projectID, domain.ErrProjectNotLoaded)
	}

	stopped := 0
	for _, ref := range refs {
		if o.registry.StopChannel(ref) {
			stopped++
		}
	}
	return stopped, nil
}

// StartChannelMonitoring persists the monitoring intent of one channel and
// starts its loop. It reports false when the loop was already running.
func (o *Orchestrator) StartChannelMonitoring(ctx context.Context, projectID, channelID string) (bool, error) {
	entry, err := o.resident(projectID)
	if err != nil {
		return false, err
	}
	ch, err := o.channelOf(ctx, projectID, channelID)
	if err != nil {
		return false, err
	}

	if !ch.MonitoringActive {
		if err := o.store.SetChannelMonitoring(ctx, ch.ID, true); err != nil {
			return false, fmt.Errorf("persist monitoring: %w", err)
		}
		ch.MonitoringActive = true
	}
	return o.startChannel(ctx, entry, ch), nil
}

// StopChannelMonitoring persists the stop intent of one channel and stops
// its loop. It reports false when no loop was running.
func (o *Orchestrator) StopChannelMonitoring(ctx context.Context, projectID, channelID string) (bool, error) {
	ch, err := o.channelOf(ctx, projectID, channelID)
	if err != nil {
		return false, err
	}
	if ch.MonitoringActive {
		if err := o.store.SetChannelMonitoring(ctx, ch.ID, false); err != nil {
			return false, fmt.Errorf("persist monitoring: %w", err)
		}
	}
	return o.registry.StopChannel(ch.ID), nil
}

// CreateProject persists a project, its site and channels in that order,
// then starts monitoring. Earlier writes are kept if a later one fails.
func (o *Orchestrator) CreateProject(ctx context.Context, input domain.NewProject) (string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", fmt.Errorf("%w: project name is required", domain.ErrConfiguration)
	}
	if input.Site.URL == "" || input.Site.Username == "" || input.Site.AppPassword == "" {
		return "", fmt.Errorf("%w: wordpress url, username and application password are required", domain.ErrConfiguration)
	}
	channelIDs := make([]string, 0, len(input.ChannelIDs))
	for _, raw := range input.ChannelIDs {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, err := o.parseID(raw)
		if err != nil {
			return "", fmt.Errorf("parse channel %q: %w", raw, err)
		}
		channelIDs = append(channelIDs, id)
	}

	project, err := o.store.CreateProject(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}

	siteName := input.Site.Name
	if siteName == "" {
		siteName = name
	}
	if _, err := o.store.CreateSite(ctx, domain.WordPressSite{
		ProjectID:   project.ID,
		Name:        siteName,
		URL:         input.Site.URL,
		Username:    input.Site.Username,
		AppPassword: input.Site.AppPassword,
	}); err != nil {
		return project.ID, fmt.Errorf("create site: %w", err)
	}

	for _, id := range channelIDs {
		if _, err := o.store.CreateChannel(ctx, domain.Channel{
			ProjectID:        project.ID,
			ExternalID:       id,
			Source:           domain.SourceRSS,
			AutoPublish:      input.AutoPublish,
			MonitoringActive: true,
		}); err != nil {
			return project.ID, fmt.Errorf("create channel %s: %w", id, err)
		}
	}

	if _, err := o.loadProject(ctx, project); err != nil {
		return project.ID, fmt.Errorf("load project: %w", err)
	}
	n, err := o.StartProjectMonitoring(ctx, project.ID)
	if err != nil {
		return project.ID, fmt.Errorf("start monitoring: %w", err)
	}
	o.logger.Info("project created", "project_id", project.ID, "name", name, "channels", n)
	return project.ID, nil
}

// AddChannel attaches a channel to a project and starts it when the project
// is resident and active.
func (o *Orchestrator) AddChannel(ctx context.Context, projectID string, input domain.NewChannel) (domain.Channel, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("get project: %w", err)
	}
	id, err := o.parseID(input.ExternalID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("parse channel %q: %w", input.ExternalID, err)
	}
	source := input.Source
	if source == "" {
		source = domain.SourceRSS
	}

	ch, err := o.store.CreateChannel(ctx, domain.Channel{
		ProjectID:        project.ID,
		ExternalID:       id,
		Name:             input.Name,
		Source:           source,
		AutoPublish:      input.AutoPublish,
		MonitoringActive: true,
	})
	if err != nil {
		return domain.Channel{}, fmt.Errorf("create channel: %w", err)
	}

	if entry, err := o.resident(projectID); err == nil && project.Active {
		o.startChannel(ctx, entry, ch)
	}
	return ch, nil
}

// SetAutoPublish persists the flag and restarts a running loop so the next
// video observes it.
func (o *Orchestrator) SetAutoPublish(ctx context.Context, projectID, channelID string, autoPublish bool) error {
	ch, err := o.channelOf(ctx, projectID, channelID)
	if err != nil {
		return err
	}
	if err := o.store.SetChannelAutoPublish(ctx, ch.ID, autoPublish); err != nil {
		return fmt.Errorf("persist auto publish: %w", err)
	}
	ch.AutoPublish = autoPublish

	entry, err := o.resident(projectID)
	if err != nil || !o.registry.IsRunning(ch.ID) {
		return nil
	}
	o.registry.StopChannel(ch.ID)
	o.startChannel(ctx, entry, ch)
	return nil
}

// SetProjectActive toggles a whole project. Deactivation stops its loops and
// evicts it; activation loads it and starts monitoring.
func (o *Orchestrator) SetProjectActive(ctx context.Context, projectID string, active bool) error {
	if err := o.store.SetProjectActive(ctx, projectID, active); err != nil {
		return fmt.Errorf("set project active: %w", err)
	}

	if !active {
		if _, err := o.StopProjectMonitoring(projectID); err != nil && !errors.Is(err, domain.ErrProjectNotLoaded) {
			return err
		}
		o.mu.Lock()
		delete(o.projects, projectID)
		o.mu.Unlock()
		return nil
	}

	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if _, err := o.loadProject(ctx, project); err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	_, err = o.StartProjectMonitoring(ctx, projectID)
	return err
}

// DeleteProject stops every loop of the project and deletes it from the store.
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string) error {
	channels, err := o.store.ListChannels(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	o.mu.Lock()
	refs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		refs[ch.ID] = struct{}{}
	}
	if entry, ok := o.projects[projectID]; ok {
		for ref := range entry.channels {
			refs[ref] = struct{}{}
		}
	}
	delete(o.projects, projectID)
	o.mu.Unlock()

	for ref := range refs {
		o.registry.Forget(ref)
	}

	if err := o.store.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	o.logger.Info("project deleted", "project_id", projectID)
	return nil
}

// GetProjectStatus returns the project, its site and channels merged with
// live monitor state. Channels are always re-read from the store. An active
// project with a site that is not resident yet is loaded, without starting
// its monitors.
func (o *Orchestrator) GetProjectStatus(ctx context.Context, projectID string) (domain.ProjectStatus, error) {
	o.mu.Lock()
	entry, ok := o.projects[projectID]
	var (
		project domain.Project
		site    *domain.WordPressSite
	)
	if ok {
		project = entry.project
		s := entry.site
		site = &s
	}
	o.mu.Unlock()

	if !ok {
		p, err := o.store.GetProject(ctx, projectID)
		if err != nil {
			return domain.ProjectStatus{}, fmt.Errorf("get project: %w", err)
		}
		project = p
		s, err := o.store.GetSite(ctx, projectID)
		switch {
		case err == nil:
			site = &s
			if p.Active {
				if _, err := o.loadProject(ctx, p); err != nil {
					o.logger.Warn("project not loadable", "project_id", projectID, "error", err)
				} else {
					o.logger.Info("project loaded on status read", "project_id", projectID)
				}
			}
		case !errors.Is(err, domain.ErrNotFound):
			return domain.ProjectStatus{}, fmt.Errorf("get site: %w", err)
		}
	}

	channels, err := o.store.ListChannels(ctx, projectID)
	if err != nil {
		return domain.ProjectStatus{}, fmt.Errorf("list channels: %w", err)
	}

	live := make(map[string]monitor.HandleInfo)
	for _, info := range o.registry.Snapshot() {
		live[info.ChannelRef] = info
	}

	status := domain.ProjectStatus{Project: project, Site: site, Channels: make([]domain.ChannelStatus, 0, len(channels))}
	for _, ch := range channels {
		info := live[ch.ID]
		status.Channels = append(status.Channels, domain.ChannelStatus{
			Channel:    ch,
			Monitoring: info.Running,
			LastPoll:   info.LastPoll,
		})
	}
	return status, nil
}

// ListProjectStatuses returns the status of every stored project.
func (o *Orchestrator) ListProjectStatuses(ctx context.Context) ([]domain.ProjectStatus, error) {
	projects, err := o.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]domain.ProjectStatus, 0, len(projects))
	for _, p := range projects {
		status, err := o.GetProjectStatus(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// ListArticles returns a project's publication records, newest first.
func (o *Orchestrator) ListArticles(ctx context.Context, projectID string) ([]domain.PublishedArticle, error) {
	articles, err := o.store.ListArticles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

// Reconcile loads active projects that are not yet resident, evicts resident
// projects that were deactivated or deleted, and converges running loops to
// the stored monitoring flags. It returns the first store error after trying
// every project.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	var firstErr error
	if active, err := o.store.ListActiveProjects(ctx); err != nil {
		firstErr = fmt.Errorf("list active projects: %w", err)
	} else {
		wanted := make(map[string]struct{}, len(active))
		for _, project := range active {
			wanted[project.ID] = struct{}{}
			if _, err := o.resident(project.ID); err == nil {
				continue
			}
			if _, err := o.loadProject(ctx, project); err != nil {
				o.logger.Debug("project not loadable", "project_id", project.ID, "error", err)
				continue
			}
			o.logger.Info("project picked up", "project_id", project.ID, "name", project.Name)
		}
		for _, id := range o.residentIDs() {
			if _, ok := wanted[id]; !ok {
				o.evict(id)
				o.logger.Info("project dropped by reconcile", "project_id", id)
			}
		}
	}

	for _, id := range o.residentIDs() {
		entry, err := o.resident(id)
		if err != nil {
			continue
		}
		channels, err := o.store.ListChannels(ctx, id)
		if err != nil {
			o.logger.Warn("reconcile skipped", "project_id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("reconcile project %s: %w", id, err)
			}
			continue
		}

		stored := make(map[string]struct{}, len(channels))
		for _, ch := range channels {
			stored[ch.ID] = struct{}{}
			running := o.registry.IsRunning(ch.ID)
			switch {
			case ch.MonitoringActive && !running:
				if o.startChannel(ctx, entry, ch) {
					o.logger.Info("monitor resumed", "project_id", id, "channel", ch.ExternalID)
				}
			case !ch.MonitoringActive && running:
				if o.registry.StopChannel(ch.ID) {
					o.logger.Info("monitor stopped by reconcile", "project_id", id, "channel", ch.ExternalID)
				}
			}
		}

		o.mu.Lock()
		var gone []string
		for ref := range entry.channels {
			if _, ok := stored[ref]; !ok {
				gone = append(gone, ref)
				delete(entry.channels, ref)
			}
		}
		o.mu.Unlock()
		for _, ref := range gone {
			o.registry.Forget(ref)
		}
	}
	return firstErr
}

// Shutdown stops every loop and waits for them to exit or ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	n := o.registry.StopAll()
	o.logger.Info("stopping monitors", "count", n)
	if err := o.registry.Wait(ctx); err != nil {
		return fmt.Errorf("wait for monitors: %w", err)
	}
	return nil
}

func (o *Orchestrator) loadProject(ctx context.Context, project domain.Project) (*projectEntry, error) {
	site, err := o.store.GetSite(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	publisher, err := o.publishers.ForSite(site)
	if err != nil {
		return nil, fmt.Errorf("build publisher: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.projects[project.ID]
	if !ok {
		entry = &projectEntry{channels: make(map[string]struct{})}
		o.projects[project.ID] = entry
	}
	entry.project = project
	entry.site = site
	entry.handler = o.pipeline.ForProject(project, publisher)
	return entry, nil
}

// evict stops and forgets every loop of a resident project and drops it.
func (o *Orchestrator) evict(projectID string) {
	o.mu.Lock()
	entry, ok := o.projects[projectID]
	var refs []string
	if ok {
		for ref := range entry.channels {
			refs = append(refs, ref)
		}
		delete(o.projects, projectID)
	}
	o.mu.Unlock()

	for _, ref := range refs {
		o.registry.Forget(ref)
	}
}

func (o *Orchestrator) resident(projectID string) (*projectEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrProjectNotLoaded)
	}
	return entry, nil
}

func (o *Orchestrator) residentIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.projects))
	for id := range o.projects {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) channelOf(ctx context.Context, projectID, channelID string) (domain.Channel, error) {
	ch, err := o.store.GetChannel(ctx, channelID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("get channel: %w", err)
	}
	if ch.ProjectID != projectID {
		return domain.Channel{}, fmt.Errorf("channel %s in project %s: %w", channelID, projectID, domain.ErrChannelProjectMismatch)
	}
	return ch, nil
}

// startChannel hands the channel to the registry. Loops outlive the caller's
// context; they end through Stop or Shutdown.
func (o *Orchestrator) startChannel(ctx context.Context, entry *projectEntry, ch domain.Channel) bool {
	o.mu.Lock()
	handler := entry.handler
	entry.channels[ch.ID] = struct{}{}
	o.mu.Unlock()

	if o.passive {
		return false
	}
	return o.registry.StartChannel(context.WithoutCancel(ctx), monitor.Spec{Channel: ch, Handler: handler})
}
