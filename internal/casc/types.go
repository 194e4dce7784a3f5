package casc

import (
	"encoding/hex"
	"fmt"
)

// EKeySize is the number of encoding key bytes stored in local index tables.
// Full encoding keys are 16 bytes; local storage only keeps the first 9.
const EKeySize = 9

// EKey is a truncated encoding key as used by the local index tables
type EKey [EKeySize]byte

// EKeyFromBytes truncates a full or partial encoding key to its local form.
// Keys shorter than EKeySize are rejected.
func EKeyFromBytes(b []byte) (EKey, error) {
	var k EKey
	if len(b) < EKeySize {
		return k, fmt.Errorf("%w: encoding key has %d bytes, need at least %d", ErrFormat, len(b), EKeySize)
	}
	copy(k[:], b)
	return k, nil
}

// ParseEKey decodes a hex encoded encoding key, as found in build configs
func ParseEKey(s string) (EKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return EKey{}, fmt.Errorf("%w: invalid encoding key %q: %v", ErrConfig, s, err)
	}
	return EKeyFromBytes(b)
}

func (k EKey) String() string {
	return hex.EncodeToString(k[:])
}

// Location identifies a region inside one of the numbered archive data files
type Location struct {
	Archive uint32
	Offset  uint64
	Size    uint32
}

func (l Location) String() string {
	return fmt.Sprintf("data.%03d@%d+%d", l.Archive, l.Offset, l.Size)
}
