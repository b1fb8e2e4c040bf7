package badger

import (
	"encoding/binary"
	"time"
)

// Key prefixes for different data types
const (
	entryPrefix  = "entry"
	sourcePrefix = "source"
	runPrefix    = "run"
)

// makeCollectionPrefix returns the key prefix shared by every entry of a collection.
// Format: entry:collection:
func makeCollectionPrefix(collection string) []byte {
	return []byte(entryPrefix + ":" + collection + ":")
}

// makeEntryKey generates a key for an entry by chunk id.
// Format: entry:collection:id
func makeEntryKey(collection, id string) []byte {
	return append(makeCollectionPrefix(collection), id...)
}

// makeSourceKey generates a key for a source by name.
func makeSourceKey(name string) []byte {
	return []byte(sourcePrefix + ":" + name)
}

// makeRunKey generates a key for a run report.
// Format: prefix:timestamp:seq
func makeRunKey(startedAt time.Time, seq uint32) []byte {
	prefix := runPrefix + ":"
	buf := make([]byte, len(prefix)+12) // 8 bytes for timestamp + 4 bytes for sequence
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(startedAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint32(buf[offset:], seq)
	return buf
}
