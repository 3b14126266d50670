package history

import (
	"time"

	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// DefaultCapacity is the buffer size used when none is configured.
const DefaultCapacity = 500

// Entry is a stored message and the id it was assigned on insertion.
type Entry struct {
	ID      int64
	Message message.Message
}

// Record is the export form of an entry. Its JSON shape is consumed by
// external tooling and must stay stable.
type Record struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}

// Record converts the entry to its export form.
func (e Entry) Record() Record {
	return Record{
		ID:        e.ID,
		Timestamp: e.Message.Timestamp,
		Payload:   e.Message.Payload,
		Metadata:  e.Message.Metadata,
	}
}

// Buffer is a ring buffer of fixed slots with a separate id counter.
//
// Stored entries always carry consecutive ids, oldest at head. Ids start
// at 1 and are never reset.
type Buffer struct {
	slots   []Entry
	head    int // index of the oldest entry
	size    int
	nextID  int64
	matcher topic.Matcher
}

// NewBuffer creates a buffer holding at most capacity messages.
// A non-positive capacity selects DefaultCapacity; a nil matcher selects
// MQTT wildcard matching.
func NewBuffer(capacity int, matcher topic.Matcher) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if matcher == nil {
		matcher = topic.Default
	}
	return &Buffer{
		slots:   make([]Entry, capacity),
		nextID:  1,
		matcher: matcher,
	}
}

// Add stores msg under a fresh id, evicting the oldest entry when full,
// and returns the id.
func (b *Buffer) Add(msg message.Message) int64 {
	id := b.nextID
	b.nextID++

	entry := Entry{ID: id, Message: msg}
	if b.size == len(b.slots) {
		b.slots[b.head] = entry
		b.head = (b.head + 1) % len(b.slots)
		return id
	}

	b.slots[b.index(b.size)] = entry
	b.size++
	return id
}

// index maps a position counted from the oldest entry to a slot index.
func (b *Buffer) index(pos int) int {
	return (b.head + pos) % len(b.slots)
}

// Last returns up to n of the most recent entries, oldest first.
func (b *Buffer) Last(n int) []Entry {
	if n <= 0 || b.size == 0 {
		return nil
	}
	if n > b.size {
		n = b.size
	}

	out := make([]Entry, 0, n)
	for pos := b.size - n; pos < b.size; pos++ {
		out = append(out, b.slots[b.index(pos)])
	}
	return out
}

// Latest returns the most recently added entry.
func (b *Buffer) Latest() (Entry, bool) {
	if b.size == 0 {
		return Entry{}, false
	}
	return b.slots[b.index(b.size-1)], true
}

// LatestID returns the id of the most recently added entry.
func (b *Buffer) LatestID() (int64, bool) {
	e, ok := b.Latest()
	return e.ID, ok
}

// Get returns the entry with the given id, if it is still stored.
func (b *Buffer) Get(id int64) (Entry, bool) {
	if b.size == 0 {
		return Entry{}, false
	}
	oldest := b.slots[b.head].ID
	if id < oldest || id >= oldest+int64(b.size) {
		return Entry{}, false
	}
	return b.slots[b.index(int(id-oldest))], true
}

// Count returns the number of stored entries.
func (b *Buffer) Count() int {
	return b.size
}

// Capacity returns the maximum number of stored entries.
func (b *Buffer) Capacity() int {
	return len(b.slots)
}

// Search returns entries whose topic matches pattern, in insertion order.
// A positive limit caps the result and stops the scan once reached.
func (b *Buffer) Search(pattern string, limit int) []Entry {
	var out []Entry
	for pos := 0; pos < b.size; pos++ {
		e := b.slots[b.index(pos)]
		if !b.matcher.Matches(pattern, e.Message.Topic()) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ByTopic is Search under the name used by topic-oriented callers.
func (b *Buffer) ByTopic(pattern string, limit int) []Entry {
	return b.Search(pattern, limit)
}

// Clear removes every entry. The id counter keeps its position.
func (b *Buffer) Clear() {
	clear(b.slots)
	b.head = 0
	b.size = 0
}

// Export returns the last limit entries as records, oldest first.
// A non-positive limit exports everything.
func (b *Buffer) Export(limit int) []Record {
	if limit <= 0 || limit > b.size {
		limit = b.size
	}

	entries := b.Last(limit)
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record()
	}
	return out
}

// SetTopicMatcher replaces the matcher used by Search and ByTopic.
// A nil matcher restores MQTT wildcard matching.
func (b *Buffer) SetTopicMatcher(m topic.Matcher) {
	if m == nil {
		m = topic.Default
	}
	b.matcher = m
}
