package bucket

import "errors"

// ErrInvalidPercentage is returned when a percentage is not in the valid range (0-100).
var ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")

// InRollout reports whether the identity behind seed falls inside a
// percentage rollout.
//
// Algorithm:
//  1. Bucket(seed) -> bucket (0-99)
//  2. If bucket < pct, the identity is included
//
// Special cases:
//   - pct=0: always false (disabled for everyone)
//   - pct=100: always true (enabled for everyone)
//
// Example: pct=25 includes ~25% of identities. Raising pct from 25 to 50
// adds identities without evicting any already included.
func InRollout(seed string, pct int) (bool, error) {
	if pct < 0 || pct > 100 {
		return false, ErrInvalidPercentage
	}
	if pct == 0 {
		return false, nil // Fast path: disabled for everyone
	}
	if pct == 100 {
		return true, nil // Fast path: enabled for everyone
	}
	return Bucket(seed) < pct, nil
}
