package repository_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/neo-radar-service/internal/adapter/sqlite"
	"github.com/couchcryptid/neo-radar-service/internal/domain"
	"github.com/couchcryptid/neo-radar-service/internal/observability"
	"github.com/couchcryptid/neo-radar-service/internal/repository"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeFeed struct {
	body  []byte
	err   error
	hook  func(ctx context.Context)
	calls atomic.Int32

	mu         sync.Mutex
	start, end string
}

func (f *fakeFeed) Feed(ctx context.Context, start, end string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.start, f.end = start, end
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

type fakePictures struct {
	pic  domain.PictureOfDay
	err  error
	date string
}

func (f *fakePictures) PictureOfDay(_ context.Context, date string) (domain.PictureOfDay, error) {
	f.date = date
	return f.pic, f.err
}

type failingCache struct {
	*sqlite.Store
}

func (failingCache) Upsert(context.Context, []domain.NearEarthObject) error {
	return fmt.Errorf("disk full: %w", domain.ErrUpsertFailed)
}

type fakePublisher struct {
	err       error
	published []domain.NearEarthObject
}

func (p *fakePublisher) Publish(_ context.Context, neos []domain.NearEarthObject) error {
	p.published = append(p.published, neos...)
	return p.err
}

// --- helpers ---

var today = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Options{
		Path:   filepath.Join(t.TempDir(), "neo.db"),
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(id, name string, hazardous bool) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"absolute_magnitude_h": 20.1,
		"estimated_diameter": {"kilometers": {"estimated_diameter_min": 0.2, "estimated_diameter_max": 0.45}},
		"is_potentially_hazardous_asteroid": %t,
		"close_approach_data": [{
			"close_approach_date": "2024-01-01",
			"relative_velocity": {"kilometers_per_second": "13.4"},
			"miss_distance": {"astronomical": "0.25"}
		}]
	}`, id, name, hazardous)
}

func feedDoc(days map[string][]string) []byte {
	parts := make([]string, 0, len(days))
	for date, recs := range days {
		parts = append(parts, fmt.Sprintf("%q: [%s]", date, strings.Join(recs, ",")))
	}
	return []byte(`{"element_count": 0, "near_earth_objects": {` + strings.Join(parts, ",") + `}}`)
}

var goodFeed = feedDoc(map[string][]string{
	"2024-03-01": {rec("100", "alpha", false), rec("101", "beta", true)},
	"2024-03-03": {rec("102", "gamma", false)},
})

type fixture struct {
	repo     *repository.Repository
	store    *sqlite.Store
	feed     *fakeFeed
	pictures *fakePictures
	metrics  *observability.Metrics
	clock    *clockwork.FakeClock
}

func newFixture(t *testing.T, opts ...repository.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    openStore(t),
		feed:     &fakeFeed{body: goodFeed},
		pictures: &fakePictures{},
		metrics:  observability.NewMetricsForTesting(),
		clock:    clockwork.NewFakeClockAt(today),
	}
	opts = append([]repository.Option{repository.WithClock(f.clock)}, opts...)
	f.repo = repository.New(f.feed, f.pictures, f.store, discardLogger(), f.metrics, opts...)
	return f
}

func cachedIDs(t *testing.T, s *sqlite.Store) []string {
	t.Helper()
	neos, err := s.List(context.Background(), "0000-01-01")
	require.NoError(t, err)
	ids := make([]string, len(neos))
	for i, n := range neos {
		ids[i] = n.ID
	}
	return ids
}

// --- refresh ---

func TestRefresh_HappyPath(t *testing.T) {
	f := newFixture(t)

	require.Error(t, f.repo.CheckReadiness(context.Background()))
	require.NoError(t, f.repo.Refresh(context.Background()))

	assert.Equal(t, "2024-03-01", f.feed.start)
	assert.Equal(t, "2024-03-07", f.feed.end)
	assert.Equal(t, []string{"100", "101", "102"}, cachedIDs(t, f.store))
	assert.Equal(t, repository.StateIdle, f.repo.State())
	assert.NoError(t, f.repo.CheckReadiness(context.Background()))

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues("success", "")), 0)
	assert.InDelta(t, float64(today.Unix()), testutil.ToFloat64(f.metrics.LastRefresh), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.RefreshInFlight), 0)

	got, ok, err := f.store.Get(context.Background(), "101")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.PotentiallyHazardous)
	assert.Equal(t, "2024-03-01", got.CloseApproachDate, "date comes from the feed key")
}

func TestRefresh_RepeatedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Refresh(context.Background()))
	require.NoError(t, f.repo.Refresh(context.Background()))

	assert.Equal(t, []string{"100", "101", "102"}, cachedIDs(t, f.store))
}

func TestRefresh_WindowFollowsClock(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(48 * time.Hour)

	require.NoError(t, f.repo.Refresh(context.Background()))
	assert.Equal(t, "2024-03-03", f.feed.start)
	assert.Equal(t, "2024-03-09", f.feed.end)
}

func TestRefresh_TransportFailureLeavesCacheUnchanged(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Refresh(context.Background()))
	before := cachedIDs(t, f.store)

	f.feed.body = feedDoc(map[string][]string{"2024-03-02": {rec("999", "new", false)}})
	f.feed.err = fmt.Errorf("feed request: %w: connection refused", domain.ErrTransport)

	err := f.repo.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrRefreshFailed)
	assert.ErrorIs(t, err, domain.ErrTransport)

	var rerr *repository.RefreshError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, repository.StageFetch, rerr.Stage)

	assert.Equal(t, before, cachedIDs(t, f.store))
	assert.Equal(t, repository.StateIdle, f.repo.State())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues("failure", "fetch")), 0)
}

func TestRefresh_ParseFailureLeavesCacheUnchanged(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Refresh(context.Background()))
	before := cachedIDs(t, f.store)

	f.feed.body = feedDoc(map[string][]string{
		"2024-03-02": {rec("200", "fine", false), `{"id": "201", "name": "broken"}`},
	})

	err := f.repo.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrRefreshFailed)
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)

	var rerr *repository.RefreshError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, repository.StageParse, rerr.Stage)
	assert.Equal(t, before, cachedIDs(t, f.store))
}

func TestRefresh_CommitFailure(t *testing.T) {
	store := openStore(t)
	feed := &fakeFeed{body: goodFeed}
	repo := repository.New(feed, &fakePictures{}, failingCache{store}, discardLogger(),
		observability.NewMetricsForTesting(), repository.WithClock(clockwork.NewFakeClockAt(today)))

	err := repo.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrRefreshFailed)
	assert.ErrorIs(t, err, domain.ErrUpsertFailed)

	var rerr *repository.RefreshError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, repository.StageCommit, rerr.Stage)
	assert.Empty(t, cachedIDs(t, store))
	assert.Error(t, repo.CheckReadiness(context.Background()))
}

func TestRefresh_CancelledBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t)
	f.feed.hook = func(context.Context) { cancel() }

	err := f.repo.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, repository.ErrRefreshFailed)
	assert.Empty(t, cachedIDs(t, f.store))
}

func TestRefresh_RejectsWhileInFlight(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	f.feed.hook = func(context.Context) {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- f.repo.Refresh(context.Background()) }()

	<-entered
	assert.Equal(t, repository.StateFetching, f.repo.State())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RefreshInFlight), 0)

	err := f.repo.Refresh(context.Background())
	assert.ErrorIs(t, err, repository.ErrRefreshInProgress)
	assert.NotErrorIs(t, err, repository.ErrRefreshFailed)
	assert.Equal(t, int32(1), f.feed.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RefreshTotal.WithLabelValues("rejected", "")), 0)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, repository.StateIdle, f.repo.State())
}

func TestRefresh_PanicReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.feed.hook = func(context.Context) { panic("feed exploded") }

	assert.PanicsWithValue(t, "feed exploded", func() { _ = f.repo.Refresh(context.Background()) })
	assert.Equal(t, repository.StateIdle, f.repo.State())
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.RefreshInFlight), 0)

	f.feed.hook = nil
	require.NoError(t, f.repo.Refresh(context.Background()))
	assert.Equal(t, []string{"100", "101", "102"}, cachedIDs(t, f.store))
}

func TestRefresh_NilMetrics(t *testing.T) {
	store := openStore(t)
	repo := repository.New(&fakeFeed{body: goodFeed}, &fakePictures{err: domain.ErrTransport}, store, discardLogger(),
		nil, repository.WithClock(clockwork.NewFakeClockAt(today)))

	require.NoError(t, repo.Refresh(context.Background()))
	assert.Equal(t, []string{"100", "101", "102"}, cachedIDs(t, store))

	_, err := repo.FetchPictureOfDay(context.Background())
	assert.ErrorIs(t, err, domain.ErrPictureUnavailable)
}

func TestRefresh_PublishesCommittedRecords(t *testing.T) {
	pub := &fakePublisher{}
	f := newFixture(t, repository.WithPublisher(pub))

	require.NoError(t, f.repo.Refresh(context.Background()))
	assert.Len(t, pub.published, 3)
	assert.InDelta(t, 3, testutil.ToFloat64(f.metrics.PublishedMessages.WithLabelValues("success")), 0)
}

func TestRefresh_PublishFailureDoesNotFailRefresh(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	f := newFixture(t, repository.WithPublisher(pub))

	require.NoError(t, f.repo.Refresh(context.Background()))
	assert.Len(t, cachedIDs(t, f.store), 3)
	assert.InDelta(t, 3, testutil.ToFloat64(f.metrics.PublishedMessages.WithLabelValues("error")), 0)
}

func TestRefresh_NotPublishedOnFailure(t *testing.T) {
	pub := &fakePublisher{}
	f := newFixture(t, repository.WithPublisher(pub))
	f.feed.body = []byte(`not json`)

	require.Error(t, f.repo.Refresh(context.Background()))
	assert.Empty(t, pub.published)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", repository.StateIdle.String())
	assert.Equal(t, "committing", repository.StateCommitting.String())
	assert.Equal(t, "state(42)", repository.State(42).String())
}

// --- picture of the day ---

func TestFetchPictureOfDay(t *testing.T) {
	f := newFixture(t)
	f.pictures.pic = domain.PictureOfDay{Title: "Nebula", MediaType: "image", URL: "https://apod.test/n.jpg"}

	pic, err := f.repo.FetchPictureOfDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Nebula", pic.Title)
	assert.True(t, pic.IsImage())
	assert.Equal(t, "2024-03-01", f.pictures.date)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PictureFetches.WithLabelValues("image")), 0)
}

func TestFetchPictureOfDay_VideoSucceeds(t *testing.T) {
	f := newFixture(t)
	f.pictures.pic = domain.PictureOfDay{Title: "Launch", MediaType: "video", URL: "https://youtube.test/embed/x"}

	pic, err := f.repo.FetchPictureOfDay(context.Background())
	require.NoError(t, err)
	assert.False(t, pic.IsImage())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PictureFetches.WithLabelValues("other_media")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.PictureFetches.WithLabelValues("image")), 0)
}

func TestFetchPictureOfDay_Failure(t *testing.T) {
	f := newFixture(t)
	f.pictures.err = fmt.Errorf("apod: %w", domain.ErrTransport)

	_, err := f.repo.FetchPictureOfDay(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPictureUnavailable)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PictureFetches.WithLabelValues("unavailable")), 0)
}

// --- observation ---

func TestObserveUpcoming(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Upsert(context.Background(), []domain.NearEarthObject{
		{ID: "old", Name: "old", CloseApproachDate: "2024-02-20"},
	}))

	obs := f.repo.ObserveUpcoming(context.Background())
	defer obs.Close()
	assert.Equal(t, "2024-03-01", obs.From())

	first := <-obs.C()
	assert.Empty(t, first)

	require.NoError(t, f.repo.Refresh(context.Background()))

	require.Eventually(t, func() bool {
		select {
		case snap := <-obs.C():
			return len(snap) == 3 && snap[0].CloseApproachDate >= "2024-03-01"
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestObserveUpcoming_TodayRederived(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Refresh(context.Background()))

	f.clock.Advance(2 * 24 * time.Hour)
	obs := f.repo.ObserveUpcoming(context.Background())
	defer obs.Close()

	assert.Equal(t, "2024-03-03", obs.From())
	snap := <-obs.C()
	require.Len(t, snap, 1)
	assert.Equal(t, "102", snap[0].ID)

	upcoming, err := f.repo.Upcoming(context.Background())
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)
}
