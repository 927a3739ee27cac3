// Package localdb exposes named tables over the process-wide Pebble store.
//
// Each table owns the key prefix "t/{table}/". Plain key/value records live
// under "t/{table}/r/{key}"; durable queues (see internal/queue) keep their
// entries under "t/{table}/q/{seq_be8}" with head/tail metadata at
// "t/{table}/m". Tables never overlap, so services sharing one store cannot
// observe each other's data.
package localdb
