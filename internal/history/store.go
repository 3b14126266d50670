package history

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// Store serialises access to a Buffer through a single owner goroutine.
//
// Start the owner with Run. Every other method hands a request to the owner
// and waits for it; the context bounds only that hand-off. Returned slices
// are fresh copies. The messages inside share their maps with the buffer,
// which is safe because messages are not mutated after ingestion.
type Store struct {
	buf      *Buffer
	requests chan func(*Buffer)
	done     chan struct{}
	running  atomic.Bool
}

// NewStore creates a store owning buf. Call Run before issuing requests.
func NewStore(buf *Buffer) *Store {
	return &Store{
		buf:      buf,
		requests: make(chan func(*Buffer)),
		done:     make(chan struct{}),
	}
}

// Run serves requests until ctx is cancelled. It returns ctx.Err() on
// shutdown; requests made afterwards fail with ErrStoreStopped.
func (s *Store) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrStoreRunning
	}
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.requests:
			fn(s.buf)
		}
	}
}

// Done is closed once Run has returned.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// do runs fn on the owner goroutine and waits for it to finish.
func (s *Store) do(ctx context.Context, fn func(*Buffer)) error {
	finished := make(chan struct{})
	req := func(b *Buffer) {
		defer close(finished)
		fn(b)
	}

	select {
	case s.requests <- req:
	case <-s.done:
		return ErrStoreStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted, the owner runs the request before looking at ctx again.
	<-finished
	return nil
}

// Add stores msg and returns its id.
func (s *Store) Add(ctx context.Context, msg message.Message) (int64, error) {
	var id int64
	err := s.do(ctx, func(b *Buffer) { id = b.Add(msg) })
	return id, err
}

// Last returns up to n of the most recent entries, oldest first.
func (s *Store) Last(ctx context.Context, n int) ([]Entry, error) {
	var out []Entry
	err := s.do(ctx, func(b *Buffer) { out = b.Last(n) })
	return out, err
}

// Latest returns the most recently added entry.
func (s *Store) Latest(ctx context.Context) (Entry, bool, error) {
	var (
		e  Entry
		ok bool
	)
	err := s.do(ctx, func(b *Buffer) { e, ok = b.Latest() })
	return e, ok, err
}

// LatestID returns the id of the most recently added entry.
func (s *Store) LatestID(ctx context.Context) (int64, bool, error) {
	var (
		id int64
		ok bool
	)
	err := s.do(ctx, func(b *Buffer) { id, ok = b.LatestID() })
	return id, ok, err
}

// Get returns the entry with the given id, if it is still stored.
func (s *Store) Get(ctx context.Context, id int64) (Entry, bool, error) {
	var (
		e  Entry
		ok bool
	)
	err := s.do(ctx, func(b *Buffer) { e, ok = b.Get(id) })
	return e, ok, err
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func(b *Buffer) { n = b.Count() })
	return n, err
}

// Capacity returns the buffer capacity. It is fixed, so no hand-off is needed.
func (s *Store) Capacity() int {
	return len(s.buf.slots)
}

// Search returns entries whose topic matches pattern, in insertion order.
func (s *Store) Search(ctx context.Context, pattern string, limit int) ([]Entry, error) {
	var out []Entry
	err := s.do(ctx, func(b *Buffer) { out = b.Search(pattern, limit) })
	return out, err
}

// ByTopic is Search under the name used by topic-oriented callers.
func (s *Store) ByTopic(ctx context.Context, pattern string, limit int) ([]Entry, error) {
	return s.Search(ctx, pattern, limit)
}

// Clear removes every entry without resetting the id counter.
func (s *Store) Clear(ctx context.Context) error {
	return s.do(ctx, func(b *Buffer) { b.Clear() })
}

// Export returns the last limit entries as records.
func (s *Store) Export(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	err := s.do(ctx, func(b *Buffer) { out = b.Export(limit) })
	return out, err
}

// SetTopicMatcher replaces the matcher used by Search and ByTopic.
func (s *Store) SetTopicMatcher(ctx context.Context, m topic.Matcher) error {
	return s.do(ctx, func(b *Buffer) { b.SetTopicMatcher(m) })
}
