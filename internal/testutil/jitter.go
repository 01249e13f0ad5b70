package testutil

// FixedJitter returns a jitter function that always yields the same delay,
// clamped to [0, span) at call time so it stays a valid jitter for any
// configured span.
func FixedJitter(delay int64) func(span int64) int64 {
	return func(span int64) int64 {
		if span <= 0 || delay < 0 {
			return 0
		}
		if delay >= span {
			return span - 1
		}
		return delay
	}
}

// ZeroJitter removes report-time randomization entirely.
func ZeroJitter(int64) int64 { return 0 }
