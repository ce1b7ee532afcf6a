package daemon

import "sync"

// WaitResult tells a long-polling worker why its wait ended.
type WaitResult int

const (
	// WaitWoken means state changed and the worker should retry its claim.
	WaitWoken WaitResult = iota
	// WaitCancelled means the owning connection went away mid-wait.
	WaitCancelled
)

// Waiters is the long-poll registry for "wait until a task might be
// claimable". A registration resolves on the next store mutation broadcast
// or when the owning connection cancels it, never by hanging forever.
type Waiters struct {
	mu      sync.Mutex
	pending map[string][]chan WaitResult // worker id → outstanding waits
}

// NewWaiters builds an empty registry.
func NewWaiters() *Waiters {
	return &Waiters{pending: map[string][]chan WaitResult{}}
}

// Register adds a wait for workerID and returns the channel it resolves on.
// The channel is buffered, so resolution never blocks the resolver.
func (w *Waiters) Register(workerID string) <-chan WaitResult {
	ch := make(chan WaitResult, 1)
	w.mu.Lock()
	w.pending[workerID] = append(w.pending[workerID], ch)
	w.mu.Unlock()
	return ch
}

// WakeAll resolves every outstanding wait as woken. The store's notify
// callback lands here after any mutation that can free a task.
func (w *Waiters) WakeAll() {
	w.mu.Lock()
	pending := w.pending
	w.pending = map[string][]chan WaitResult{}
	w.mu.Unlock()

	for _, chans := range pending {
		for _, ch := range chans {
			ch <- WaitWoken
		}
	}
}

// Cancel resolves every outstanding wait of one worker as cancelled.
func (w *Waiters) Cancel(workerID string) {
	w.mu.Lock()
	chans := w.pending[workerID]
	delete(w.pending, workerID)
	w.mu.Unlock()

	for _, ch := range chans {
		ch <- WaitCancelled
	}
}

// Outstanding reports how many waits are pending, for status queries.
func (w *Waiters) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, chans := range w.pending {
		n += len(chans)
	}
	return n
}
