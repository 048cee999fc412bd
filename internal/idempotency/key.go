// Package idempotency derives the X-Idempotency-Token attached to order
// creation so that repeated submission attempts inside the same coarse time
// window collapse to one server-side order.
//
// Known tradeoff: only the first segment of the token is content-derived.
// The random segment is regenerated on every call, so a network-level retry
// does NOT resend a byte-identical token; dedupe relies on the server
// matching the content segment plus the order body. This mirrors the
// upstream API's observed behavior and must not be "fixed" to a fully
// deterministic token without confirming how the server dedupes.
package idempotency

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key is a two-segment idempotency token: an 8-hex-digit content hash over
// the payload plus a second-truncated timestamp, and 128 bits of hex
// randomness. Rendered as two dot-separated halves, matching the
// two-identifier format the API expects.
type Key struct {
	content string
	random  string
}

// Generate derives a key for the payload at the current time.
func Generate(payload []byte) Key {
	return At(payload, time.Now())
}

// At derives a key for the payload at an explicit time. Two calls with
// byte-identical payloads inside the same wall-clock second share the
// content segment.
func At(payload []byte, now time.Time) Key {
	bucket := strconv.FormatInt(now.Unix(), 10)

	h := hash31(payload, bucket)
	content := strings.ToLower(strconv.FormatUint(uint64(abs32(h)), 16))
	if len(content) < 8 {
		content = strings.Repeat("0", 8-len(content)) + content
	}

	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return Key{content: content, random: random}
}

// ContentSegment returns the deterministic hash segment of the key.
func (k Key) ContentSegment() string { return k.content }

// String renders the token: content + 24 random hex digits, a dot, then the
// remaining 8 random hex digits.
func (k Key) String() string {
	return k.content + k.random[:24] + "." + k.random[24:]
}

// hash31 is a 31-multiplier rolling hash wrapped to signed 32 bits, run
// over the payload followed by the time bucket.
func hash31(payload []byte, bucket string) int32 {
	var h int32
	for _, b := range payload {
		h = h*31 + int32(b)
	}
	for i := 0; i < len(bucket); i++ {
		h = h*31 + int32(bucket[i])
	}
	return h
}

func abs32(v int32) uint32 {
	if v < 0 {
		return uint32(-int64(v))
	}
	return uint32(v)
}
