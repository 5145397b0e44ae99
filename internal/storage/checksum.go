// V2 block-trailer checksums, protecting block payloads from silent
// corruption. The algorithm is selectable per file via
// Config.ChecksumAlgorithm.
package storage

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Checksum algorithm constants for Config.ChecksumAlgorithm.
const (
	ChecksumXXH3    = 1 // default, fastest
	ChecksumBlake2b = 2 // stronger distribution, used selectively
)

// checksum8 returns an 8-byte checksum of data using the configured
// algorithm, truncating wider digests.
func checksum8(alg int, data []byte) [8]byte {
	var out [8]byte
	switch alg {
	case ChecksumBlake2b:
		sum := blake2b.Sum256(data)
		copy(out[:], sum[:8])
	default:
		binary.BigEndian.PutUint64(out[:], xxh3.Hash(data))
	}
	return out
}
