package sqlite

import (
	"context"
	"sync"

	"github.com/couchcryptid/neo-radar-service/internal/domain"
)

// Observation is a live view of the rows with close_approach_date >= from.
//
// C delivers an initial snapshot and then a fresh snapshot after every
// committed upsert. Snapshots are coalesced: a reader that falls behind
// receives the latest state, not a backlog. C is closed when the observing
// context ends, Close is called, the store closes, or a query fails (see Err).
type Observation struct {
	store *Store
	from  string

	out     chan []domain.NearEarthObject
	signal  chan struct{}
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// ObserveFrom opens a live view of the rows dated from onward, ascending by
// date then id. The view lives until ctx is done or Close is called.
func (s *Store) ObserveFrom(ctx context.Context, from string) *Observation {
	o := &Observation{
		store:   s,
		from:    from,
		out:     make(chan []domain.NearEarthObject),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	// Queue the initial snapshot while the buffer is still private; once
	// registered, notify may fill it concurrently. Registering before the
	// first query means a commit racing with the subscription is never missed.
	o.signal <- struct{}{}
	if !s.addObserver(o) {
		o.Close()
		close(o.out)
		close(o.stopped)
		return o
	}

	go o.run(ctx)
	return o
}

// C returns the snapshot channel.
func (o *Observation) C() <-chan []domain.NearEarthObject { return o.out }

// From is the inclusive lower date bound of the view.
func (o *Observation) From() string { return o.from }

// Close stops the view. It is safe to call more than once.
func (o *Observation) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Err returns the query error that terminated the view, if any. It is only
// meaningful after C has been closed.
func (o *Observation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Observation) run(ctx context.Context) {
	defer close(o.stopped)
	defer close(o.out)
	defer o.store.removeObserver(o)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case <-o.signal:
		}
		if !o.deliver(ctx) {
			return
		}
	}
}

// deliver queries and sends one snapshot, re-querying whenever a newer commit
// arrives before the reader takes it. It returns false when the view must end.
func (o *Observation) deliver(ctx context.Context) bool {
	for {
		snapshot, err := o.store.List(ctx, o.from)
		if err != nil {
			if ctx.Err() == nil {
				o.setErr(err)
				o.store.logger.Error("neo observation query failed", "error", err, "from", o.from)
			}
			return false
		}

		select {
		case o.out <- snapshot:
			return true
		case <-o.signal:
		case <-ctx.Done():
			return false
		case <-o.done:
			return false
		}
	}
}

func (o *Observation) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (s *Store) addObserver(o *Observation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.observers[o] = struct{}{}
	if s.metrics != nil {
		s.metrics.LiveObservations.Inc()
	}
	return true
}

func (s *Store) removeObserver(o *Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.observers[o]; !ok {
		return
	}
	delete(s.observers, o)
	if s.metrics != nil {
		s.metrics.LiveObservations.Dec()
	}
}

// notify wakes every observation without blocking the writer.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for o := range s.observers {
		select {
		case o.signal <- struct{}{}:
		default:
		}
	}
}
