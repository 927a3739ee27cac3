package localdb

import "encoding/binary"

// Keyspace layout (byte-wise, lexicographically sortable):
// - t/{table}/r/{key}
// - t/{table}/q/{seq_be8}
// - t/{table}/m

var (
	tablePrefix = []byte("t/")
	recordSeg   = []byte("/r/")
	queueSeg    = []byte("/q/")
	metaSuffix  = []byte("/m")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyTablePrefix returns the prefix every key of table starts with.
func KeyTablePrefix(table Table) []byte {
	k := make([]byte, 0, len(table)+3)
	k = append(k, tablePrefix...)
	k = append(k, table...)
	k = append(k, '/')
	return k
}

// KeyRecordPrefix returns the prefix of the table's key/value records.
func KeyRecordPrefix(table Table) []byte {
	k := make([]byte, 0, len(table)+5)
	k = append(k, tablePrefix...)
	k = append(k, table...)
	k = append(k, recordSeg...)
	return k
}

// KeyRecord builds the key of one record.
func KeyRecord(table Table, key string) []byte {
	return append(KeyRecordPrefix(table), key...)
}

// KeyQueuePrefix returns the prefix of the table's queue entries.
func KeyQueuePrefix(table Table) []byte {
	k := make([]byte, 0, len(table)+13)
	k = append(k, tablePrefix...)
	k = append(k, table...)
	k = append(k, queueSeg...)
	return k
}

// KeyQueueEntry builds the entry key with a big-endian sequence for proper ordering.
func KeyQueueEntry(table Table, seq uint64) []byte {
	return appendBE8(KeyQueuePrefix(table), seq)
}

// KeyQueueMeta builds the queue metadata key.
func KeyQueueMeta(table Table) []byte {
	k := make([]byte, 0, len(table)+4)
	k = append(k, tablePrefix...)
	k = append(k, table...)
	k = append(k, metaSuffix...)
	return k
}
