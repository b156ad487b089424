package hash

import (
	"bufhash/pkg/storage/page"

	"github.com/cespare/xxhash/v2"
)

// DefaultHash hashes a key with xxhash and truncates to the low 32
// bits, matching the table's uint32 index width. The directory's
// depth never exceeds MaxDepth bits, so the truncation loses no
// addressable entropy.
func DefaultHash(key page.Key) uint32 {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(key >> (8 * i))
	}
	return uint32(xxhash.Sum64(buf[:]))
}

// DefaultCmp orders keys the ordinary numeric way.
func DefaultCmp(a, b page.Key) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
