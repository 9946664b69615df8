package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ThrottledError marks an upstream throttling response.
// It is the only error the Gate retries.
type ThrottledError struct {
	Endpoint   string
	Status     int
	RetryAfter time.Duration // zero when the server sent no hint
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("throttled by %s (status %d, retry after %s)", e.Endpoint, e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("throttled by %s (status %d)", e.Endpoint, e.Status)
}

// IsThrottled reports whether err wraps a ThrottledError.
func IsThrottled(err error) bool {
	var te *ThrottledError
	return errors.As(err, &te)
}

// ParseRetryAfter reads a Retry-After header value given as delta seconds or
// an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
