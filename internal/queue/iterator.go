package queue

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/warden/internal/localdb"
)

// Iterator walks queue entries in one direction. It must be closed.
type Iterator struct {
	it      *pebble.Iterator
	table   localdb.Table
	reverse bool
	started bool
}

// Iterator walks entries from oldest to newest.
func (q *Queue) Iterator() (*Iterator, error) {
	it, err := q.newIter()
	if err != nil {
		return nil, err
	}
	return &Iterator{it: it, table: q.table}, nil
}

// DescendingIterator walks entries from newest to oldest.
func (q *Queue) DescendingIterator() (*Iterator, error) {
	it, err := q.newIter()
	if err != nil {
		return nil, err
	}
	return &Iterator{it: it, table: q.table, reverse: true}, nil
}

// Next advances the iterator, reporting whether an entry is available.
func (i *Iterator) Next() bool {
	if !i.started {
		i.started = true
		if i.reverse {
			return i.it.Last()
		}
		return i.it.First()
	}
	if i.reverse {
		return i.it.Prev()
	}
	return i.it.Next()
}

// Entry decodes the current entry. Corrupt frames return ErrCorrupt with the
// sequence set so callers can skip and continue.
func (i *Iterator) Entry() (Entry, error) {
	key := i.it.Key()
	seq := uint64(0)
	if len(key) >= 8 {
		seq = binary.BigEndian.Uint64(key[len(key)-8:])
	}
	wt, data, err := decodeFrame(i.it.Value())
	if err != nil {
		return Entry{Seq: seq}, err
	}
	return Entry{Seq: seq, WriteTime: wt, Data: data}, nil
}

func (i *Iterator) Err() error { return localdb.Wrap("iterate", i.table, i.it.Error()) }

func (i *Iterator) Close() error { return localdb.Wrap("iterate", i.table, i.it.Close()) }
