// Package repository coordinates the NASA client, the feed parser and the
// cache. It owns the refresh state machine and the "today" clock.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/neo-radar-service/internal/adapter/sqlite"
	"github.com/couchcryptid/neo-radar-service/internal/domain"
	"github.com/couchcryptid/neo-radar-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// FeedSource returns the raw NeoWs feed document for an inclusive date range.
type FeedSource interface {
	Feed(ctx context.Context, startDate, endDate string) ([]byte, error)
}

// PictureSource returns the picture of the day for a date.
type PictureSource interface {
	PictureOfDay(ctx context.Context, date string) (domain.PictureOfDay, error)
}

// Cache is the durable NEO store.
type Cache interface {
	Upsert(ctx context.Context, neos []domain.NearEarthObject) error
	List(ctx context.Context, from string) ([]domain.NearEarthObject, error)
	ObserveFrom(ctx context.Context, from string) *sqlite.Observation
}

// Publisher receives records after they have been committed to the cache.
type Publisher interface {
	Publish(ctx context.Context, neos []domain.NearEarthObject) error
}

// Repository is the single entry point consumers use to refresh, read and
// observe NEO data.
type Repository struct {
	feed      FeedSource
	pictures  PictureSource
	cache     Cache
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	state     atomic.Int32
	refreshed atomic.Bool
}

// Option customizes a Repository.
type Option func(*Repository)

// WithPublisher forwards committed records to p.
func WithPublisher(p Publisher) Option {
	return func(r *Repository) { r.publisher = p }
}

// WithClock overrides the wall clock used to derive "today".
func WithClock(c clockwork.Clock) Option {
	return func(r *Repository) { r.clock = c }
}

// New creates a Repository. A nil metrics records into an unregistered set.
func New(feed FeedSource, pictures PictureSource, cache Cache, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Repository {
	r := &Repository{
		feed:     feed,
		pictures: pictures,
		cache:    cache,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
	if r.metrics == nil {
		r.metrics = observability.NewMetricsForTesting()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State reports the current refresh phase.
func (r *Repository) State() State {
	return State(r.state.Load())
}

// Window returns the seven-day window starting today.
func (r *Repository) Window() domain.Window {
	return domain.ComputeWindow(r.clock.Now())
}

// Refresh fetches the feed for the current window, parses it and commits the
// result to the cache in one transaction. If any stage fails the cache is left
// as it was and a *RefreshError is returned. A call made while another refresh
// is running returns ErrRefreshInProgress without doing any work.
func (r *Repository) Refresh(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateFetching)) {
		r.metrics.RefreshTotal.WithLabelValues("rejected", "").Inc()
		return ErrRefreshInProgress
	}
	defer r.state.Store(int32(StateIdle))
	r.metrics.RefreshInFlight.Set(1)
	defer r.metrics.RefreshInFlight.Set(0)

	start := r.clock.Now()
	window := r.Window()
	log := r.logger.With("start_date", window.Start(), "end_date", window.End())
	log.Info("neo refresh started")

	n, err := r.refresh(ctx, window)
	r.metrics.RefreshDuration.Observe(r.clock.Since(start).Seconds())

	if err != nil {
		r.state.Store(int32(StateFailed))
		var rerr *RefreshError
		stage := ""
		if errors.As(err, &rerr) {
			stage = string(rerr.Stage)
		}
		r.metrics.RefreshTotal.WithLabelValues("failure", stage).Inc()
		log.Error("neo refresh failed", "error", err, "stage", stage)
		return err
	}

	r.refreshed.Store(true)
	r.metrics.RefreshTotal.WithLabelValues("success", "").Inc()
	r.metrics.LastRefresh.Set(float64(r.clock.Now().Unix()))
	log.Info("neo refresh complete", "records", n)
	return nil
}

func (r *Repository) refresh(ctx context.Context, window domain.Window) (int, error) {
	body, err := r.feed.Feed(ctx, window.Start(), window.End())
	if err != nil {
		return 0, &RefreshError{Stage: StageFetch, Err: err}
	}

	r.state.Store(int32(StateParsing))
	neos, err := domain.ParseFeed(body)
	if err != nil {
		return 0, &RefreshError{Stage: StageParse, Err: err}
	}

	r.state.Store(int32(StateCommitting))
	if err := ctx.Err(); err != nil {
		return 0, &RefreshError{Stage: StageCommit, Err: err}
	}
	if err := r.cache.Upsert(ctx, neos); err != nil {
		return 0, &RefreshError{Stage: StageCommit, Err: err}
	}

	r.publish(ctx, neos)
	return len(neos), nil
}

// publish runs after the commit, so a failure here is reported but does not
// fail the refresh.
func (r *Repository) publish(ctx context.Context, neos []domain.NearEarthObject) {
	if r.publisher == nil || len(neos) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, neos); err != nil {
		r.metrics.PublishedMessages.WithLabelValues("error").Add(float64(len(neos)))
		r.logger.Warn("publish neo updates failed", "error", err, "records", len(neos))
		return
	}
	r.metrics.PublishedMessages.WithLabelValues("success").Add(float64(len(neos)))
}

// FetchPictureOfDay returns the picture of the day for the first date of the
// current window. Every failure wraps domain.ErrPictureUnavailable. A video or
// other non-image media type is a successful result.
func (r *Repository) FetchPictureOfDay(ctx context.Context) (domain.PictureOfDay, error) {
	date := r.Window().Start()
	pic, err := r.pictures.PictureOfDay(ctx, date)
	if err != nil {
		r.metrics.PictureFetches.WithLabelValues("unavailable").Inc()
		r.logger.Warn("picture of the day unavailable", "error", err, "date", date)
		return domain.PictureOfDay{}, fmt.Errorf("%w: %s: %w", domain.ErrPictureUnavailable, date, err)
	}
	if !pic.IsImage() {
		r.metrics.PictureFetches.WithLabelValues("other_media").Inc()
		r.logger.Debug("picture of the day is not an image", "date", date, "media_type", pic.MediaType)
		return pic, nil
	}
	r.metrics.PictureFetches.WithLabelValues("image").Inc()
	return pic, nil
}

// ObserveUpcoming returns a live view of the cached records dated today or
// later. "Today" is read once, when the view is opened; a view held across
// midnight keeps the lower bound it opened with.
func (r *Repository) ObserveUpcoming(ctx context.Context) *sqlite.Observation {
	return r.cache.ObserveFrom(ctx, r.Window().Start())
}

// Upcoming returns the cached records dated today or later.
func (r *Repository) Upcoming(ctx context.Context) ([]domain.NearEarthObject, error) {
	return r.cache.List(ctx, r.Window().Start())
}

// CheckReadiness returns nil once at least one refresh has committed.
func (r *Repository) CheckReadiness(_ context.Context) error {
	if !r.refreshed.Load() {
		return errors.New("no successful neo refresh yet")
	}
	return nil
}
