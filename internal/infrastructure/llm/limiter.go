package llm

import (
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter allows perMinute generation requests with the given burst. A
// non-positive perMinute disables throttling.
func NewLimiter(perMinute float64, burst int) *rate.Limiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}
