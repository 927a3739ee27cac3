// Package queue implements a durable, double-ended event queue on top of a
// localdb table.
//
// Entries are appended at the newest end in atomic batches and carry the
// write time in their frame header, which lets retention trim by age without
// decoding payloads. Which end a consumer reads from is its own choice: the
// event log polls the newest entry, outbound send queues drain the oldest.
//
// Usage
//
//	q, _ := queue.Open(db, localdb.TableEventLogEvents)
//	_ = q.Append(ctx, []byte("a"), []byte("b"))
//	it, _ := q.DescendingIterator()
//	defer it.Close()
//	for it.Next() {
//	    e, err := it.Entry()
//	    _ = e; _ = err
//	}
package queue
