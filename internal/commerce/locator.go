package commerce

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Coords is a coarse latitude/longitude pair.
type Coords struct {
	Lat float64
	Lon float64
}

// String renders the pair the way the API header expects: "lat,lon".
func (c Coords) String() string {
	return fmt.Sprintf("%g,%g", c.Lat, c.Lon)
}

// Locator supplies the best-known user coordinates. A fix may be absent;
// requests are then sent without the coordinate header.
type Locator interface {
	Current() (Coords, bool)
}

// StaticLocator always reports the same fix. Useful when coordinates come
// from launch parameters.
type StaticLocator struct {
	Coords Coords
}

func (s StaticLocator) Current() (Coords, bool) { return s.Coords, true }

// NoLocation reports no fix at all.
type NoLocation struct{}

func (NoLocation) Current() (Coords, bool) { return Coords{}, false }

// RefreshingLocator polls an external fix function on a fixed interval and
// caches the last successful result. Failures keep the previous fix.
type RefreshingLocator struct {
	fetch    func(context.Context) (Coords, error)
	interval time.Duration
	logger   *log.Logger

	mu   sync.RWMutex
	last Coords
	ok   bool
}

// NewRefreshingLocator builds a locator around fetch. Call Run to start the
// refresh loop; until the first successful fetch no fix is reported.
func NewRefreshingLocator(fetch func(context.Context) (Coords, error), interval time.Duration, logger *log.Logger) *RefreshingLocator {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &RefreshingLocator{fetch: fetch, interval: interval, logger: logger}
}

func (r *RefreshingLocator) Current() (Coords, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.ok
}

// Run refreshes the fix immediately and then on every interval tick until
// the context is cancelled.
func (r *RefreshingLocator) Run(ctx context.Context) {
	r.refresh(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *RefreshingLocator) refresh(ctx context.Context) {
	coords, err := r.fetch(ctx)
	if err != nil {
		r.logger.Printf("[geo] refresh failed: %v", err)
		return
	}
	r.mu.Lock()
	r.last = coords
	r.ok = true
	r.mu.Unlock()
}
