package autoconfig

import (
	"crypto/rand"
	"math/big"
)

// randIntn returns a uniform random integer in [0, n) using a
// cryptographically secure source. Falls back to an error rather than a
// weak PRNG if the system entropy source is unavailable.
func randIntn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
