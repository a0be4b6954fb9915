package engine

import "sync"

// inbox is the engine's unbounded mailbox. Producers never block; the loop
// takes everything pending in one swap and processes it in arrival order.
type inbox struct {
	mu      sync.Mutex
	pending []Event
	spare   []Event
	shut    bool
	ready   chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		pending: make([]Event, 0, 64),
		spare:   make([]Event, 0, 64),
		ready:   make(chan struct{}, 1),
	}
}

// post appends ev and wakes the loop. It reports false once the inbox is shut.
func (b *inbox) post(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shut {
		return false
	}
	b.pending = append(b.pending, ev)
	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

// take returns every pending event. The returned slice is only valid until
// the next call to take.
func (b *inbox) take() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.pending
	clear(b.spare)
	b.pending, b.spare = b.spare[:0], batch
	return batch
}

// wake fires after a post and is closed by shutdown.
func (b *inbox) wake() <-chan struct{} { return b.ready }

func (b *inbox) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *inbox) isShut() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shut
}

// shutdown refuses further posts. Events already pending can still be taken.
func (b *inbox) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.shut {
		b.shut = true
		close(b.ready)
	}
}
