package fileindex

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// hashBytes computes the xxhash64 hex digest of content, matching
// internal/walker's content-hash choice so a ReindexOne comparison against
// a Scan-produced hash is always apples-to-apples.
func hashBytes(content []byte) string {
	sum := xxhash.Sum64(content)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(buf)
}
