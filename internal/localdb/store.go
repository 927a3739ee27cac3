package localdb

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/warden/internal/storage/pebble"
)

// Table names a disjoint keyspace within the store.
type Table string

const (
	TableIntruderUser    Table = "INTRUDER_USER"
	TableIntruderAddress Table = "INTRUDER_ADDRESS"
	TableEventLogEvents  Table = "EVENTLOG_EVENTS"
)

// Store provides get/put/remove/size/iterate/truncate over named tables.
type Store struct {
	db *pebblestore.DB
}

// New wraps an open Pebble store.
func New(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying Pebble wrapper.
func (s *Store) DB() *pebblestore.DB { return s.db }

// Get returns the value stored under key. found is false when the key is absent.
func (s *Store) Get(table Table, key string) (value []byte, found bool, err error) {
	v, err := s.db.Get(KeyRecord(table, key))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, wrap("get", table, err)
	}
	return v, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, table Table, key string, value []byte) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyRecord(table, key), value, nil); err != nil {
		return wrap("put", table, err)
	}
	return wrap("put", table, s.db.CommitBatch(ctx, b))
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, table Table, key string) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(KeyRecord(table, key), nil); err != nil {
		return wrap("remove", table, err)
	}
	return wrap("remove", table, s.db.CommitBatch(ctx, b))
}

// RemoveKeys deletes all keys in one batch.
func (s *Store) RemoveKeys(ctx context.Context, table Table, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, k := range keys {
		if err := b.Delete(KeyRecord(table, k), nil); err != nil {
			return wrap("remove", table, err)
		}
	}
	return wrap("remove", table, s.db.CommitBatch(ctx, b))
}

// Size counts the records in table. It is a full scan.
func (s *Store) Size(table Table) (int, error) {
	it, err := s.Iterator(table)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Err()
}

// Iterator walks the table's records in key order. The caller must Close it.
func (s *Store) Iterator(table Table) (*Iterator, error) {
	prefix := KeyRecordPrefix(table)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixEnd(prefix)})
	if err != nil {
		return nil, wrap("iterate", table, err)
	}
	return &Iterator{it: it, table: table, prefixLen: len(prefix)}, nil
}

// Truncate deletes every key of the table: records, queue entries and metadata.
func (s *Store) Truncate(ctx context.Context, table Table) error {
	prefix := KeyTablePrefix(table)
	return wrap("truncate", table, s.db.DeleteRange(ctx, prefix, pebblestore.PrefixEnd(prefix)))
}

// Iterator is a forward cursor over one table's records.
type Iterator struct {
	it        *pebble.Iterator
	table     Table
	prefixLen int
	started   bool
}

// Next advances to the next record, reporting whether one exists.
func (i *Iterator) Next() bool {
	if !i.started {
		i.started = true
		return i.it.First()
	}
	return i.it.Next()
}

// Key returns the record key without the table prefix.
func (i *Iterator) Key() string { return string(i.it.Key()[i.prefixLen:]) }

// Value returns a copy of the current value.
func (i *Iterator) Value() []byte { return append([]byte(nil), i.it.Value()...) }

func (i *Iterator) Err() error { return wrap("iterate", i.table, i.it.Error()) }

func (i *Iterator) Close() error { return wrap("iterate", i.table, i.it.Close()) }
