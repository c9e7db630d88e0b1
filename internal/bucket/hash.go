// Package bucket provides deterministic identity bucketing for rollouts,
// traffic allocation, and variant selection. It maps an arbitrary seed string
// to a stable bucket (0-99) so that:
//   - The same identity always lands in the same bucket (deterministic)
//   - Increasing a rollout from 10% to 20% only adds identities, never removes
//   - Server and client evaluation agree when given the same seed
//
// The hash is the classic djb2-style rolling hash over the seed's UTF-16
// code units with 32-bit signed wraparound, so a charCodeAt-based client
// hashing the same seed lands in the same bucket for any input, ASCII or
// not. It is not cryptographic; only determinism and rough uniformity
// matter here.
package bucket

import "unicode/utf16"

// Bucket returns a deterministic bucket in [0, 100) for the given seed.
// An empty seed is valid and maps to bucket 0.
func Bucket(seed string) int {
	var h int32
	for _, u := range utf16.Encode([]rune(seed)) {
		h = (h << 5) - h + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % 100)
}
