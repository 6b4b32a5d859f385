package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TubeArticles/internal/domain"
	"TubeArticles/internal/infrastructure/storage"
	"TubeArticles/internal/monitor"
)

type orchestratorFixture struct {
	store    *storage.MemoryStore
	registry *monitor.Registry
	orch     *Orchestrator
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	dedupStore := newMemDedup()
	registry := monitor.NewRegistry(monitor.Deps{
		Feed:  &staticFeed{},
		Dedup: dedupStore,
		Settings: monitor.Settings{
			Lookback:     48 * time.Hour,
			PollInterval: time.Hour,
			ErrorBackoff: time.Hour,
			FeedTimeout:  time.Second,
		},
	})
	pipeline := NewPipeline(PipelineDeps{
		Transcripts: newFakeTranscripts(),
		Generator:   &fakeGenerator{},
		Dedup:       dedupStore,
		Store:       store,
	})
	orch := NewOrchestrator(OrchestratorDeps{
		Store:      store,
		Registry:   registry,
		Publishers: &fakeFactory{publisher: &fakePublisher{}},
		Pipeline:   pipeline,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, orch.Shutdown(ctx))
	})
	return &orchestratorFixture{store: store, registry: registry, orch: orch}
}

func newProjectInput(channels ...string) domain.NewProject {
	return domain.NewProject{
		Name:        "Go Blog",
		Site:        domain.NewSite{URL: "https://blog.example", Username: "admin", AppPassword: "abcd efgh"},
		ChannelIDs:  channels,
		AutoPublish: true,
	}
}

func TestCreateProjectStartsMonitoring(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1", "UC2", " "))
	require.NoError(t, err)

	status, err := f.orch.GetProjectStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Go Blog", status.Project.Name)
	require.NotNil(t, status.Site)
	assert.Equal(t, "Go Blog", status.Site.Name)
	require.Len(t, status.Channels, 2)
	for _, ch := range status.Channels {
		assert.True(t, ch.Monitoring)
		assert.True(t, ch.AutoPublish)
	}
	assert.Len(t, f.registry.ListActive(), 2)
}

func TestCreateProjectValidatesInput(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)

	_, err := f.orch.CreateProject(context.Background(), domain.NewProject{Name: " "})
	require.ErrorIs(t, err, domain.ErrConfiguration)

	input := newProjectInput()
	input.Site.AppPassword = ""
	_, err = f.orch.CreateProject(context.Background(), input)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	projects, err := f.store.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestChannelMonitoringLifecycle(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1"))
	require.NoError(t, err)
	channels, err := f.store.ListChannels(ctx, id)
	require.NoError(t, err)
	ch := channels[0]

	stopped, err := f.orch.StopChannelMonitoring(ctx, id, ch.ID)
	require.NoError(t, err)
	assert.True(t, stopped)
	stopped, err = f.orch.StopChannelMonitoring(ctx, id, ch.ID)
	require.NoError(t, err)
	assert.False(t, stopped)

	stored, err := f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, stored.MonitoringActive)

	started, err := f.orch.StartChannelMonitoring(ctx, id, ch.ID)
	require.NoError(t, err)
	assert.True(t, started)
	started, err = f.orch.StartChannelMonitoring(ctx, id, ch.ID)
	require.NoError(t, err)
	assert.False(t, started)

	stored, err = f.store.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, stored.MonitoringActive)
}

func TestChannelOfOtherProjectIsRejected(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	first, err := f.orch.CreateProject(ctx, newProjectInput("UC1"))
	require.NoError(t, err)
	second, err := f.orch.CreateProject(ctx, newProjectInput("UC2"))
	require.NoError(t, err)
	channels, err := f.store.ListChannels(ctx, first)
	require.NoError(t, err)

	_, err = f.orch.StopChannelMonitoring(ctx, second, channels[0].ID)
	require.ErrorIs(t, err, domain.ErrChannelProjectMismatch)
	_, err = f.orch.StartChannelMonitoring(ctx, second, channels[0].ID)
	require.ErrorIs(t, err, domain.ErrChannelProjectMismatch)
	assert.True(t, f.registry.IsRunning(channels[0].ID))
}

func TestUnknownProjectIsNotLoaded(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)

	_, err := f.orch.StartProjectMonitoring(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrProjectNotLoaded)
	_, err = f.orch.StopProjectMonitoring("nope")
	require.ErrorIs(t, err, domain.ErrProjectNotLoaded)
}

func TestProjectStopAndRestart(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1", "UC2"))
	require.NoError(t, err)

	n, err := f.orch.StopProjectMonitoring(id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.registry.ListActive())

	n, err = f.orch.StartProjectMonitoring(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = f.orch.StartProjectMonitoring(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStartAllSkipsProjectsWithoutSite(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	good, err := f.store.CreateProject(ctx, "good")
	require.NoError(t, err)
	_, err = f.store.CreateSite(ctx, domain.WordPressSite{ProjectID: good.ID, URL: "https://b", Username: "u", AppPassword: "p"})
	require.NoError(t, err)
	_, err = f.store.CreateChannel(ctx, domain.Channel{ProjectID: good.ID, ExternalID: "UC1", MonitoringActive: true})
	require.NoError(t, err)
	_, err = f.store.CreateChannel(ctx, domain.Channel{ProjectID: good.ID, ExternalID: "UC2", MonitoringActive: false})
	require.NoError(t, err)

	orphan, err := f.store.CreateProject(ctx, "orphan")
	require.NoError(t, err)
	_, err = f.store.CreateChannel(ctx, domain.Channel{ProjectID: orphan.ID, ExternalID: "UC3", MonitoringActive: true})
	require.NoError(t, err)

	require.NoError(t, f.orch.StartAll(ctx))
	assert.Len(t, f.registry.ListActive(), 1)

	_, err = f.orch.StartProjectMonitoring(ctx, orphan.ID)
	require.ErrorIs(t, err, domain.ErrProjectNotLoaded)
}

func TestReconcileFollowsStoredIntent(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1", "UC2"))
	require.NoError(t, err)
	channels, err := f.store.ListChannels(ctx, id)
	require.NoError(t, err)

	// Flip intent behind the orchestrator's back.
	require.NoError(t, f.store.SetChannelMonitoring(ctx, channels[0].ID, false))
	f.registry.StopChannel(channels[1].ID)

	require.NoError(t, f.orch.Reconcile(ctx))
	assert.False(t, f.registry.IsRunning(channels[0].ID))
	assert.True(t, f.registry.IsRunning(channels[1].ID))
}

func TestPassiveOrchestratorLeavesStartToReconcile(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	admin := NewOrchestrator(OrchestratorDeps{
		Store:      f.store,
		Registry:   monitor.NewRegistry(monitor.Deps{Feed: &staticFeed{}, Dedup: newMemDedup()}),
		Publishers: &fakeFactory{publisher: &fakePublisher{}},
		Pipeline:   NewPipeline(PipelineDeps{}),
		Passive:    true,
	})

	id, err := admin.CreateProject(ctx, newProjectInput("UC1"))
	require.NoError(t, err)
	channels, err := f.store.ListChannels(ctx, id)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.True(t, channels[0].MonitoringActive)
	assert.Empty(t, f.registry.ListActive())

	require.NoError(t, f.orch.Reconcile(ctx))
	assert.True(t, f.registry.IsRunning(channels[0].ID))
}

func TestReconcileDropsProjectsDeletedElsewhere(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1"))
	require.NoError(t, err)
	channels, err := f.store.ListChannels(ctx, id)
	require.NoError(t, err)
	require.True(t, f.registry.IsRunning(channels[0].ID))

	require.NoError(t, f.store.DeleteProject(ctx, id))
	require.NoError(t, f.orch.Reconcile(ctx))

	assert.False(t, f.registry.IsRunning(channels[0].ID))
	_, err = f.orch.StartProjectMonitoring(ctx, id)
	require.ErrorIs(t, err, domain.ErrProjectNotLoaded)
}

func TestGetProjectStatusLoadsProject(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	project, err := f.store.CreateProject(ctx, "Stored Elsewhere")
	require.NoError(t, err)
	_, err = f.store.CreateSite(ctx, domain.WordPressSite{
		ProjectID: project.ID, Name: "blog", URL: "https://blog.example", Username: "admin", AppPassword: "secret",
	})
	require.NoError(t, err)
	ch, err := f.store.CreateChannel(ctx, domain.Channel{ProjectID: project.ID, ExternalID: "UC1"})
	require.NoError(t, err)

	status, err := f.orch.GetProjectStatus(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, status.Site)
	require.Len(t, status.Channels, 1)
	assert.False(t, status.Channels[0].Monitoring)

	started, err := f.orch.StartChannelMonitoring(ctx, project.ID, ch.ID)
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, f.registry.IsRunning(ch.ID))
}

func TestGetProjectStatusWithoutSite(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	project, err := f.store.CreateProject(ctx, "No Site")
	require.NoError(t, err)

	status, err := f.orch.GetProjectStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Nil(t, status.Site)
	assert.Empty(t, status.Channels)

	_, err = f.orch.StartProjectMonitoring(ctx, project.ID)
	require.ErrorIs(t, err, domain.ErrProjectNotLoaded)
}

func TestSetAutoPublishRestartsRunningMonitor(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1"))
	require.NoError(t, err)
	channels, err := f.store.ListChannels(ctx, id)
	require.NoError(t, err)
	before := f.registry.Snapshot()[0].RunID

	require.NoError(t, f.orch.SetAutoPublish(ctx, id, channels[0].ID, false))

	stored, err := f.store.GetChannel(ctx, channels[0].ID)
	require.NoError(t, err)
	assert.False(t, stored.AutoPublish)
	snap := f.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Running)
	assert.NotEqual(t, before, snap[0].RunID)
}

func TestAddChannelStartsWhenResident(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput())
	require.NoError(t, err)

	ch, err := f.orch.AddChannel(ctx, id, domain.NewChannel{ExternalID: "UC9", Name: "Nine", AutoPublish: true})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRSS, ch.Source)
	assert.True(t, f.registry.IsRunning(ch.ID))

	_, err = f.orch.AddChannel(ctx, "missing", domain.NewChannel{ExternalID: "UC9"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetProjectActiveTogglesMonitors(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1"))
	require.NoError(t, err)

	require.NoError(t, f.orch.SetProjectActive(ctx, id, false))
	assert.Empty(t, f.registry.ListActive())
	_, err = f.orch.StopProjectMonitoring(id)
	require.ErrorIs(t, err, domain.ErrProjectNotLoaded)

	require.NoError(t, f.orch.SetProjectActive(ctx, id, true))
	assert.Len(t, f.registry.ListActive(), 1)
}

func TestDeleteProjectStopsMonitors(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1", "UC2"))
	require.NoError(t, err)

	require.NoError(t, f.orch.DeleteProject(ctx, id))
	assert.Empty(t, f.registry.ListActive())
	assert.Empty(t, f.registry.Snapshot())

	_, err = f.orch.GetProjectStatus(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListStatusesAndArticles(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	id, err := f.orch.CreateProject(ctx, newProjectInput("UC1"))
	require.NoError(t, err)
	require.NoError(t, f.store.RecordArticle(ctx, domain.PublishedArticle{ProjectID: id, VideoID: "v1", Status: domain.ArticlePublished}))

	statuses, err := f.orch.ListProjectStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, id, statuses[0].Project.ID)

	articles, err := f.orch.ListArticles(ctx, id)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "v1", articles[0].VideoID)
}

type countingReconciler struct{ calls chan struct{} }

func (c *countingReconciler) Reconcile(context.Context) error {
	c.calls <- struct{}{}
	return nil
}

type manualDriver struct{ job func(time.Time) }

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error { return nil }

func TestSchedulerRunsReconcile(t *testing.T) {
	t.Parallel()

	driver := &manualDriver{}
	rec := &countingReconciler{calls: make(chan struct{}, 1)}
	s := NewScheduler(driver, rec, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)
	driver.job(time.Now())
	<-rec.calls
	require.NoError(t, s.Stop(context.Background()))
}
