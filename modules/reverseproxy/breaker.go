package reverseproxy

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a backend's circuit is open.
var ErrCircuitOpen = errors.New("reverseproxy: circuit open")

// breaker opens after threshold consecutive failures and lets one probe request
// through once resetTimeout has passed.
type breaker struct {
	backend      string
	threshold    int
	resetTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return true
	}
	if b.probing || b.now().Sub(b.openedAt) < b.resetTimeout {
		return false
	}
	b.probing = true
	return true
}

func (b *breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if ok {
		if b.failures >= b.threshold {
			b.logger.Info("Backend circuit closed", "backend", b.backend)
		}
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		if b.failures == b.threshold {
			b.logger.Warn("Backend circuit opened", "backend", b.backend, "failures", b.failures)
		}
		b.openedAt = b.now()
	}
}

// breakerTransport counts transport errors and 5xx responses as failures.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *breaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.breaker.allow() {
		return nil, ErrCircuitOpen
	}
	resp, err := t.next.RoundTrip(req)
	t.breaker.record(err == nil && resp.StatusCode < http.StatusInternalServerError)
	return resp, err
}
