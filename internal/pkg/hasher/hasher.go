package hasher

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns the xxHash64 of data as 16 lowercase hex digits.
func ContentHash(data []byte) string {
	s := strconv.FormatUint(xxhash.Sum64(data), 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}

// ETag wraps the content hash as a strong HTTP entity tag.
func ETag(data []byte) string {
	return `"` + ContentHash(data) + `"`
}
