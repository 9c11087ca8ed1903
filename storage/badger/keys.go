package badger

import (
	"encoding/binary"

	"github.com/poiesic/sentvec/core"
)

// Key prefixes for different data types
const (
	recordPrefix     = "rec:"
	recordTextPrefix = "rectxt:"
	recordIDSeq      = "recseq"
	checkpointPrefix = "ckpt:"
)

// makeRecordKey generates a key for a record by ID.
// Format: prefix + 8 byte big-endian ID, so iteration follows ID order.
func makeRecordKey(id core.ID) []byte {
	buf := make([]byte, len(recordPrefix)+8)
	offset := copy(buf, recordPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// recordIDFromKey extracts the ID from a primary record key.
func recordIDFromKey(key []byte) (core.ID, bool) {
	if len(key) != len(recordPrefix)+8 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[len(recordPrefix):])), true
}

// makeRecordTextKey generates a composite key for the duplicate index.
// Format: prefix:contentHash:id
func makeRecordTextKey(text string, id core.ID) []byte {
	buf := make([]byte, len(recordTextPrefix)+16)
	offset := copy(buf, recordTextPrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(text)))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// textKeyParts splits a duplicate index key into content hash and record ID.
func textKeyParts(key []byte) (hash, id core.ID, ok bool) {
	if len(key) != len(recordTextPrefix)+16 {
		return 0, 0, false
	}
	rest := key[len(recordTextPrefix):]
	return core.ID(binary.BigEndian.Uint64(rest[:8])), core.ID(binary.BigEndian.Uint64(rest[8:])), true
}

// makeCheckpointKey generates a key for a checkpoint by job name.
func makeCheckpointKey(name string) []byte {
	return []byte(checkpointPrefix + name)
}
