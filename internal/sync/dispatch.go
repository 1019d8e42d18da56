package sync

import stdsync "sync"

// Dispatcher serializes listener callbacks onto a single goroutine so
// consumers never have to guard against concurrent delivery. Posts from any
// goroutine are executed in FIFO order.
type Dispatcher struct {
	mu     stdsync.Mutex
	ch     chan func()
	closed bool

	done chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its delivery goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		ch:   make(chan func(), 64),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for fn := range d.ch {
		fn()
	}
}

// Post queues fn for delivery. It blocks only if the queue is full, which
// means a listener callback is stuck. After Close the callback is silently
// dropped: a sync pass still in flight during shutdown has nobody listening.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.ch <- fn
}

// Flush blocks until every callback posted before it has been delivered.
// After Close it returns immediately.
func (d *Dispatcher) Flush() {
	barrier := make(chan struct{})

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.ch <- func() { close(barrier) }
	d.mu.Unlock()

	<-barrier
}

// Close drains the queue and stops the delivery goroutine. Safe to call more
// than once; later Posts become no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	<-d.done
}
