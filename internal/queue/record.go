package queue

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

// Frame encoding: varint headerLen | header | payload | crc32c(header|payload).
// The header is the 8-byte big-endian write time in unix ms.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrCorrupt is returned for entries whose frame fails the length or CRC check.
var ErrCorrupt = errors.New("queue: corrupt entry")

const headerLen = 8

func encodeFrame(writeMs int64, payload []byte) []byte {
	var header [headerLen]byte
	binary.BigEndian.PutUint64(header[:], uint64(writeMs))

	out := make([]byte, 0, 1+headerLen+len(payload)+4)
	out = binary.AppendUvarint(out, headerLen)
	out = append(out, header[:]...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header[:])
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// decodeFrame validates b and returns the write time and a copy of the payload.
func decodeFrame(b []byte) (time.Time, []byte, error) {
	if len(b) < 1+4 {
		return time.Time{}, nil, ErrCorrupt
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen != headerLen {
		return time.Time{}, nil, ErrCorrupt
	}
	if n+int(hlen)+4 > len(b) {
		return time.Time{}, nil, ErrCorrupt
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return time.Time{}, nil, ErrCorrupt
	}
	ms := int64(binary.BigEndian.Uint64(header))
	return time.UnixMilli(ms), append([]byte(nil), payload...), nil
}
