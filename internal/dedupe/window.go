// ABOUTME: Bounded TTL window of recently seen keys for suppressing retried messages
// ABOUTME: Expired keys are dropped lazily from the oldest end; no background goroutine

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key  string
	seen time.Time
}

// Window remembers keys for ttl, holding at most maxSize of them.
type Window struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewWindow creates a window. Non-positive values fall back to 5 minutes and
// 10000 keys.
func NewWindow(ttl time.Duration, maxSize int) *Window {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Window{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key was already recorded within the window. A new key
// is recorded in the same step, so concurrent callers with the same key see
// exactly one false.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	if _, ok := w.index[key]; ok {
		return true
	}
	if w.order.Len() >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.index[key] = w.order.PushBack(&entry{key: key, seen: now})
	return false
}

// Len returns the number of keys currently remembered.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked(w.now())
	return w.order.Len()
}

// expireLocked drops expired keys. Entries are appended in time order so
// only the front needs checking.
func (w *Window) expireLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		e, _ := front.Value.(*entry)
		if now.Sub(e.seen) < w.ttl {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e, _ := el.Value.(*entry)
	w.order.Remove(el)
	delete(w.index, e.key)
}
