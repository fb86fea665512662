package app

import (
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"
)

// failureThrottle blocks a client after too many failed attempts inside a
// sliding window. State is in-memory and per process.
type failureThrottle struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

func newFailureThrottle(limit int, window time.Duration) *failureThrottle {
	return &failureThrottle{
		limit:    limit,
		window:   window,
		now:      time.Now,
		failures: make(map[string][]time.Time),
	}
}

// Blocked reports whether key is throttled and for how long.
func (t *failureThrottle) Blocked(key string) (bool, time.Duration) {
	if t == nil || t.limit <= 0 {
		return false, 0
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key] = pruneBefore(t.failures[key], now.Add(-t.window))
	if len(t.failures[key]) == 0 {
		delete(t.failures, key)
		return false, 0
	}
	return evaluateWindowThrottle(now, t.failures[key], t.limit, t.window)
}

// Fail records one failed attempt for key.
func (t *failureThrottle) Fail(key string) {
	if t == nil || t.limit <= 0 {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key] = append(pruneBefore(t.failures[key], now.Add(-t.window)), now)
}

func pruneBefore(ts []time.Time, cut time.Time) []time.Time {
	return slices.DeleteFunc(ts, func(t time.Time) bool { return t.Before(cut) })
}

// evaluateWindowThrottle blocks once limit failures fall inside window. The
// retry delay is the time until enough of them age out.
func evaluateWindowThrottle(now time.Time, failures []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	in := make([]time.Time, 0, len(failures))
	for _, f := range failures {
		if !f.Before(cut) {
			in = append(in, f)
		}
	}
	if len(in) < limit {
		return false, 0
	}
	slices.SortFunc(in, func(a, b time.Time) int { return a.Compare(b) })
	return true, in[len(in)-limit].Add(window).Sub(now)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	http.Error(w, "too many attempts", http.StatusTooManyRequests)
}
