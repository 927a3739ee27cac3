package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/jonboulle/clockwork"

	"github.com/rzbill/warden/internal/localdb"
	pebblestore "github.com/rzbill/warden/internal/storage/pebble"
)

// Entry is one stored record.
type Entry struct {
	Seq       uint64
	WriteTime time.Time
	Data      []byte
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used to stamp write times.
func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// Queue is a durable double-ended queue stored in one localdb table.
//
// Entries occupy the contiguous sequence range [head, tail]; the queue is
// empty when head > tail. Mutations are serialised by mu; iterators read a
// Pebble point-in-time view and may lag by one batch.
type Queue struct {
	db    *pebblestore.DB
	table localdb.Table
	clock clockwork.Clock

	mu   sync.Mutex
	head uint64
	tail uint64
}

// Open loads head/tail from metadata, scanning the key range when the
// metadata is absent.
func Open(db *pebblestore.DB, table localdb.Table, opts ...Option) (*Queue, error) {
	q := &Queue{
		db:    db,
		table: table,
		clock: clockwork.NewRealClock(),
		head:  1,
		tail:  0,
	}
	for _, o := range opts {
		o(q)
	}

	meta, err := db.Get(localdb.KeyQueueMeta(table))
	switch {
	case err == nil && len(meta) >= 16:
		q.head = binary.BigEndian.Uint64(meta[0:8])
		q.tail = binary.BigEndian.Uint64(meta[8:16])
		return q, nil
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, localdb.Wrap("open", table, err)
	}

	it, err := q.newIter()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	if it.First() {
		q.head = q.seqOf(it.Key())
		it.Last()
		q.tail = q.seqOf(it.Key())
	}
	return q, nil
}

// Table returns the table backing the queue.
func (q *Queue) Table() localdb.Table { return q.table }

func (q *Queue) newIter() (*pebble.Iterator, error) {
	prefix := localdb.KeyQueuePrefix(q.table)
	it, err := q.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixEnd(prefix)})
	if err != nil {
		return nil, localdb.Wrap("iterate", q.table, err)
	}
	return it, nil
}

func (q *Queue) seqOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

func (q *Queue) putMeta(b *pebble.Batch, head, tail uint64) error {
	var meta [16]byte
	binary.BigEndian.PutUint64(meta[0:8], head)
	binary.BigEndian.PutUint64(meta[8:16], tail)
	return b.Set(localdb.KeyQueueMeta(q.table), meta[:], nil)
}

// commit writes the batch and the new bounds. State is only updated once the
// batch is durable.
func (q *Queue) commit(ctx context.Context, op string, b *pebble.Batch, head, tail uint64) error {
	if err := q.putMeta(b, head, tail); err != nil {
		return localdb.Wrap(op, q.table, err)
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return localdb.Wrap(op, q.table, err)
	}
	q.head, q.tail = head, tail
	return nil
}

func (q *Queue) lenLocked() int {
	if q.head > q.tail {
		return 0
	}
	return int(q.tail - q.head + 1)
}

// Timed is a record carrying its own origin time.
type Timed struct {
	Time time.Time
	Data []byte
}

// Append adds records at the newest end as one atomic batch, preserving order.
func (q *Queue) Append(ctx context.Context, records ...[]byte) error {
	items := make([]Timed, len(records))
	for i, r := range records {
		items[i].Data = r
	}
	return q.AppendTimed(ctx, items...)
}

// AppendTimed is Append for records that know when they happened. An entry's
// write time is the earlier of its Time and now, so back-dated records age
// from their origin. A zero Time means now.
func (q *Queue) AppendTimed(ctx context.Context, items ...Timed) error {
	if len(items) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.db.NewBatch()
	defer b.Close()

	now := q.clock.Now()
	tail := q.tail
	for _, it := range items {
		tail++
		at := now
		if !it.Time.IsZero() && it.Time.Before(now) {
			at = it.Time
		}
		if err := b.Set(localdb.KeyQueueEntry(q.table, tail), encodeFrame(at.UnixMilli(), it.Data), nil); err != nil {
			return localdb.Wrap("append", q.table, err)
		}
	}
	head := q.head
	if q.lenLocked() == 0 {
		head = q.tail + 1
	}
	return q.commit(ctx, "append", b, head, tail)
}

// RemoveOldest deletes up to n entries from the oldest end and returns how
// many were removed.
func (q *Queue) RemoveOldest(ctx context.Context, n int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || q.lenLocked() == 0 {
		return 0, nil
	}
	if l := q.lenLocked(); n > l {
		n = l
	}
	b := q.db.NewBatch()
	defer b.Close()
	start := localdb.KeyQueueEntry(q.table, q.head)
	end := localdb.KeyQueueEntry(q.table, q.head+uint64(n))
	if err := b.DeleteRange(start, end, nil); err != nil {
		return 0, localdb.Wrap("remove", q.table, err)
	}
	if err := q.commit(ctx, "remove", b, q.head+uint64(n), q.tail); err != nil {
		return 0, err
	}
	return n, nil
}

func (q *Queue) getLocked(seq uint64) (Entry, error) {
	raw, err := q.db.Get(localdb.KeyQueueEntry(q.table, seq))
	if err != nil {
		return Entry{Seq: seq}, localdb.Wrap("get", q.table, err)
	}
	wt, data, err := decodeFrame(raw)
	if err != nil {
		return Entry{Seq: seq}, err
	}
	return Entry{Seq: seq, WriteTime: wt, Data: data}, nil
}

// PeekNewest returns the most recently appended entry without removing it.
// ok is false when the queue is empty. A corrupt entry is returned with
// ErrCorrupt.
func (q *Queue) PeekNewest() (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() == 0 {
		return Entry{}, false, nil
	}
	e, err := q.getLocked(q.tail)
	return e, true, err
}

// PollNewest removes and returns the most recently appended entry.
func (q *Queue) PollNewest(ctx context.Context) (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() == 0 {
		return Entry{}, false, nil
	}
	e, getErr := q.getLocked(q.tail)
	if getErr != nil && !errors.Is(getErr, ErrCorrupt) {
		return Entry{}, false, getErr
	}
	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Delete(localdb.KeyQueueEntry(q.table, q.tail), nil); err != nil {
		return Entry{}, false, localdb.Wrap("poll", q.table, err)
	}
	if err := q.commit(ctx, "poll", b, q.head, q.tail-1); err != nil {
		return Entry{}, false, err
	}
	return e, true, getErr
}

// PeekOldest returns the oldest entry without removing it.
func (q *Queue) PeekOldest() (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() == 0 {
		return Entry{}, false, nil
	}
	e, err := q.getLocked(q.head)
	return e, true, err
}

// PollOldest removes and returns the oldest entry.
func (q *Queue) PollOldest(ctx context.Context) (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() == 0 {
		return Entry{}, false, nil
	}
	e, getErr := q.getLocked(q.head)
	if getErr != nil && !errors.Is(getErr, ErrCorrupt) {
		return Entry{}, false, getErr
	}
	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Delete(localdb.KeyQueueEntry(q.table, q.head), nil); err != nil {
		return Entry{}, false, localdb.Wrap("poll", q.table, err)
	}
	if err := q.commit(ctx, "poll", b, q.head+1, q.tail); err != nil {
		return Entry{}, false, err
	}
	return e, true, getErr
}

// Len returns the number of stored entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// IsEmpty reports whether the queue holds no entries.
func (q *Queue) IsEmpty() bool { return q.Len() == 0 }

// Clear removes every entry. Sequence numbers keep increasing afterwards.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.db.NewBatch()
	defer b.Close()
	prefix := localdb.KeyQueuePrefix(q.table)
	if err := b.DeleteRange(prefix, pebblestore.PrefixEnd(prefix), nil); err != nil {
		return localdb.Wrap("clear", q.table, err)
	}
	return q.commit(ctx, "clear", b, q.tail+1, q.tail)
}

// RemoveOlderThan deletes entries from the oldest end whose write time is
// before cutoff, stopping at the first newer entry or after limit deletions
// (limit <= 0 means no limit). Corrupt entries at the old end count as
// expired.
func (q *Queue) RemoveOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() == 0 {
		return 0, nil
	}
	it, err := q.newIter()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	cutoffMs := cutoff.UnixMilli()
	n := 0
	for ok := it.First(); ok && (limit <= 0 || n < limit); ok = it.Next() {
		wt, _, err := decodeFrame(it.Value())
		if err == nil && wt.UnixMilli() >= cutoffMs {
			break
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}

	b := q.db.NewBatch()
	defer b.Close()
	start := localdb.KeyQueueEntry(q.table, q.head)
	end := localdb.KeyQueueEntry(q.table, q.head+uint64(n))
	if err := b.DeleteRange(start, end, nil); err != nil {
		return 0, localdb.Wrap("trim", q.table, err)
	}
	if err := q.commit(ctx, "trim", b, q.head+uint64(n), q.tail); err != nil {
		return 0, err
	}
	return n, nil
}

// OldestWriteTime returns the write time of the oldest entry.
func (q *Queue) OldestWriteTime() (time.Time, bool, error) {
	e, ok, err := q.PeekOldest()
	if !ok || err != nil {
		return time.Time{}, false, err
	}
	return e.WriteTime, true, nil
}
