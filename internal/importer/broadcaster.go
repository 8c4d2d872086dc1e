package importer

// broadcaster.go maintains the per-job observer registry and fans progress
// and terminal events out to every attached observer.
//
// Delivery is non-blocking: an observer whose buffer is full misses that
// event but stays registered, so a slow or stalled client can never stall
// ingestion. Removal from the registry happens only on the observer's own
// disconnect (Detach) or when the job terminalizes (PublishAndClose).

import "sync"

// observerBuffer is the per-observer event channel capacity. Large enough to
// absorb a flush burst while an SSE write is in flight.
const observerBuffer = 16

// Observer is one live subscription to a job's event stream.
type Observer struct {
	ch   chan Event
	once sync.Once
}

// Events returns the receive side of the observer's stream. The channel is
// closed after the terminal event or on detach.
func (o *Observer) Events() <-chan Event {
	return o.ch
}

func (o *Observer) close() {
	o.once.Do(func() { close(o.ch) })
}

// newTerminalObserver builds a detached observer that yields exactly the
// given event and is already closed. Used for subscriptions to jobs that
// reached a terminal state before the observer arrived.
func newTerminalObserver(ev Event) *Observer {
	o := &Observer{ch: make(chan Event, 1)}
	o.ch <- ev
	o.close()
	return o
}

// Broadcaster tracks, per job ID, the set of currently attached observers.
// All methods are safe for concurrent use.
type Broadcaster struct {
	mu   sync.Mutex
	jobs map[string]map[*Observer]bool
}

// NewBroadcaster creates an empty observer registry.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{jobs: make(map[string]map[*Observer]bool)}
}

// Attach registers a new observer for the job and returns it.
func (b *Broadcaster) Attach(jobID string) *Observer {
	o := &Observer{ch: make(chan Event, observerBuffer)}

	b.mu.Lock()
	set, ok := b.jobs[jobID]
	if !ok {
		set = make(map[*Observer]bool)
		b.jobs[jobID] = set
	}
	set[o] = true
	b.mu.Unlock()

	return o
}

// Detach removes the observer and closes its stream. The job's registry
// entry is dropped entirely once its observer set becomes empty. Detaching
// an observer that is no longer registered is a no-op.
func (b *Broadcaster) Detach(jobID string, o *Observer) {
	b.mu.Lock()
	if set, ok := b.jobs[jobID]; ok {
		delete(set, o)
		if len(set) == 0 {
			delete(b.jobs, jobID)
		}
	}
	b.mu.Unlock()

	o.close()
}

// Publish delivers an event to every observer currently attached to the job.
// An observer that cannot accept the event misses it; delivery to the others
// continues and the observer stays registered.
func (b *Broadcaster) Publish(jobID string, kind EventKind, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for o := range b.jobs[jobID] {
		select {
		case o.ch <- Event{Kind: kind, Payload: payload}:
		default:
		}
	}
}

// PublishAndClose sends the terminal event to every attached observer, ends
// each observer's stream, and clears the job's registry entry. Called exactly
// once per job, at completion or failure, so no observer outlives a terminal
// state.
func (b *Broadcaster) PublishAndClose(jobID string, kind EventKind, payload any) {
	b.mu.Lock()
	set := b.jobs[jobID]
	delete(b.jobs, jobID)
	b.mu.Unlock()

	for o := range set {
		select {
		case o.ch <- Event{Kind: kind, Payload: payload}:
		default:
		}
		o.close()
	}
}

// send delivers one event to a single observer, but only while that observer
// is still attached to the job. Observers are closed only after removal from
// the registry, so the membership check under the lock is what makes the send
// safe against a concurrent PublishAndClose or Detach.
func (b *Broadcaster) send(jobID string, o *Observer, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.jobs[jobID][o] {
		return
	}
	select {
	case o.ch <- ev:
	default:
	}
}

// ObserverCount returns the number of observers attached to the job.
func (b *Broadcaster) ObserverCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs[jobID])
}
