package browser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeOnboarding Mode = "onboarding"
	ModeAutomation Mode = "automation"
)

type Lease struct {
	ID         string
	Key        string
	Mode       Mode
	AcquiredAt time.Time
}

type holder struct {
	lease    Lease
	instance Instance
	page     Page
	done     chan struct{}
	timer    *time.Timer
	closing  bool
}

// Registry guarantees at most one live browser per profile key. Automation
// callers queue behind the current holder; onboarding callers are refused.
type Registry struct {
	mu   sync.Mutex
	held map[string]*holder
}

func NewRegistry() *Registry {
	return &Registry{held: make(map[string]*holder)}
}

func (r *Registry) grant(key string, mode Mode) Lease {
	lease := Lease{ID: uuid.NewString(), Key: key, Mode: mode, AcquiredAt: time.Now()}
	r.held[key] = &holder{lease: lease, done: make(chan struct{})}
	return lease
}

// TryAcquire returns ErrSessionBusy when key is already held.
func (r *Registry) TryAcquire(key string, mode Mode) (Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.held[key]; busy {
		return Lease{}, ErrSessionBusy
	}
	return r.grant(key, mode), nil
}

// Acquire waits until key is free or ctx is done.
func (r *Registry) Acquire(ctx context.Context, key string, mode Mode) (Lease, error) {
	for {
		r.mu.Lock()
		h, busy := r.held[key]
		if !busy {
			lease := r.grant(key, mode)
			r.mu.Unlock()
			return lease, nil
		}
		done := h.done
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return Lease{}, ctx.Err()
		case <-done:
		}
	}
}

// Attach records the browser owned by lease so that Release, Evict and
// CloseAll shut it down.
func (r *Registry) Attach(lease Lease, inst Instance, page Page) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.held[lease.Key]
	if !ok || h.lease.ID != lease.ID || h.closing {
		return false
	}
	h.instance = inst
	h.page = page
	return true
}

// Current returns the lease and page holding key, if any.
func (r *Registry) Current(key string) (Lease, Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.held[key]
	if !ok {
		return Lease{}, nil, false
	}
	return h.lease, h.page, true
}

// ReleaseAfter releases lease after d unless it was released first.
func (r *Registry) ReleaseAfter(lease Lease, d time.Duration, onExpire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.held[lease.Key]
	if !ok || h.lease.ID != lease.ID || h.closing {
		return
	}
	h.timer = time.AfterFunc(d, func() {
		if r.Release(lease) && onExpire != nil {
			onExpire()
		}
	})
}

// Release frees key when lease still holds it and closes the attached
// browser. Releasing twice, or with a stale lease, is a no-op. The key stays
// busy until the browser is closed.
func (r *Registry) Release(lease Lease) bool {
	r.mu.Lock()
	h, ok := r.held[lease.Key]
	if !ok || h.lease.ID != lease.ID || h.closing {
		r.mu.Unlock()
		return false
	}
	h.closing = true
	r.mu.Unlock()

	r.shutdown(lease.Key, h)
	return true
}

// Evict force-releases whatever holds key.
func (r *Registry) Evict(key string) {
	r.mu.Lock()
	h, ok := r.held[key]
	if !ok || h.closing {
		r.mu.Unlock()
		return
	}
	h.closing = true
	r.mu.Unlock()

	r.shutdown(key, h)
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	held := make(map[string]*holder, len(r.held))
	for key, h := range r.held {
		if !h.closing {
			h.closing = true
			held[key] = h
		}
	}
	r.mu.Unlock()

	for key, h := range held {
		r.shutdown(key, h)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

func (r *Registry) shutdown(key string, h *holder) {
	if h.timer != nil {
		h.timer.Stop()
	}
	if h.instance != nil {
		_ = h.instance.Close()
	}

	r.mu.Lock()
	if r.held[key] == h {
		delete(r.held, key)
	}
	r.mu.Unlock()
	close(h.done)
}
