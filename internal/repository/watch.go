package repository

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// ChangeFunc receives the full value at a watched path, or an error when
// nothing is stored there.
type ChangeFunc func(value json.RawMessage, err error)

// Watch is a durable observation of one path. It stays active until Cancel
// is called.
type Watch struct {
	id        uint64
	path      string
	segs      []string
	fn        ChangeFunc
	cancelled atomic.Bool
	set       *watchSet

	// reads numbers every read of path taken for this watch. Only the
	// dispatcher touches delivered.
	reads     atomic.Uint64
	delivered uint64
}

// nextRead must be taken before reading the watched value
func (w *Watch) nextRead() uint64 {
	return w.reads.Add(1)
}

// Path returns the observed path
func (w *Watch) Path() string {
	return w.path
}

// Cancel stops further deliveries, including ones already queued
func (w *Watch) Cancel() {
	if w.cancelled.CompareAndSwap(false, true) {
		w.set.remove(w.id)
	}
}

type watchSet struct {
	mu      sync.Mutex
	nextID  uint64
	watches map[uint64]*Watch
}

func newWatchSet() *watchSet {
	return &watchSet{watches: make(map[uint64]*Watch)}
}

func (s *watchSet) add(path string, fn ChangeFunc) *Watch {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	w := &Watch{id: s.nextID, path: path, segs: SplitPath(path), fn: fn, set: s}
	s.watches[w.id] = w
	return w
}

func (s *watchSet) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watches, id)
}

// affected returns the watches whose value may change when segs is written
func (s *watchSet) affected(segs []string) []*Watch {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Watch
	for _, w := range s.watches {
		if related(w.segs, segs) {
			out = append(out, w)
		}
	}
	return out
}

type delivery struct {
	watch *Watch
	seq   uint64
	value json.RawMessage
	err   error
}

// dispatcher delivers watch callbacks in order on a single goroutine. The
// queue is unbounded so callbacks may write to the store without blocking.
// A value read before one already delivered to the same watch is dropped.
type dispatcher struct {
	mu      sync.Mutex
	pending []delivery
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(w *Watch, seq uint64, value json.RawMessage, err error) {
	d.mu.Lock()
	d.pending = append(d.pending, delivery{watch: w, seq: seq, value: value, err: err})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			batch := d.pending
			d.pending = nil
			d.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, item := range batch {
				w := item.watch
				if w.cancelled.Load() || item.seq <= w.delivered {
					continue
				}
				w.delivered = item.seq
				w.fn(item.value, item.err)
			}
		}
	}
}

func (d *dispatcher) close() {
	d.once.Do(func() { close(d.done) })
}
