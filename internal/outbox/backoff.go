package outbox

import (
	"math/rand/v2"
	"sort"
	"time"
)

// Backoff returns the delay before retry number attempt (1-based): base
// doubled per attempt, capped at ceiling, with the upper half jittered.
func Backoff(base, ceiling time.Duration, attempt int, jitter func(n int64) int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	if jitter == nil {
		jitter = rand.Int64N
	}
	return half + time.Duration(jitter(int64(half)+1))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
