package state

import (
	"fmt"
	"sync"
	"time"
)

// subscriberBuffer is the per-observer channel capacity. A slow observer that
// falls this far behind starts losing transitions rather than blocking the
// executor's read loop.
const subscriberBuffer = 128

// Transition is one applied state change, delivered to observers.
type Transition struct {
	Old   State `json:"old_state"`
	New   State `json:"new_state"`
	Event Event `json:"event"`
}

// Machine applies events to an agent state value and broadcasts transitions.
// Apply is total: every (state, event) pair has a defined outcome, with
// unexpected combinations landing in an unrecoverable Error state.
//
// Observers subscribe by obtaining a receiver channel; the Machine owns the
// sender side and closes all channels on Close, so observers never hold a
// strong reference back to the owner.
type Machine struct {
	mu      sync.RWMutex
	current State
	subs    map[int]chan Transition
	nextSub int
	closed  bool
	now     func() time.Time
}

// NewMachine returns a Machine in the Initializing state.
func NewMachine() *Machine {
	return &Machine{
		current: Initializing(),
		subs:    make(map[int]chan Transition),
		now:     time.Now,
	}
}

// Current returns an atomic snapshot of the state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers an observer and returns its receive channel plus a
// cancel function. The channel is closed on cancel or Machine Close.
func (m *Machine) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Transition, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Apply computes the transition for ev, installs the new state, and fans the
// transition out to all observers. Returns the new state.
func (m *Machine) Apply(ev Event) State {
	m.mu.Lock()
	old := m.current
	next := nextState(old, ev, m.now)
	m.current = next
	// Fan-out happens under the lock so every observer sees transitions in
	// the same total order Apply installed them. Sends never block: the
	// channels are buffered and overflow is dropped.
	for _, ch := range m.subs {
		select {
		case ch <- Transition{Old: old, New: next, Event: ev}:
		default:
		}
	}
	m.mu.Unlock()
	return next
}

// Close closes all observer channels. Further Subscribe calls receive an
// already-closed channel; further Apply calls still mutate state but notify
// no one.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

// nextState is the pure transition function. Unexpected (state, event) pairs
// produce an unrecoverable Error naming the pair.
func nextState(cur State, ev Event, now func() time.Time) State {
	// An error can interrupt anything.
	if ev.Kind == EventErrorOccurred {
		return Errored(ev.Message, ev.Recoverable)
	}

	switch cur.Kind {
	case KindInitializing:
		if ev.Kind == EventInitialized {
			return Idle("")
		}

	case KindIdle:
		if ev.Kind == EventTaskStarted {
			return Processing("", now())
		}

	case KindProcessing:
		switch ev.Kind {
		case EventToolUseStarted:
			return Processing(ev.ToolName, cur.StartedAt)
		case EventToolUseCompleted:
			// A failed tool does not end the task; the assistant usually
			// recovers on its own.
			return Processing("", cur.StartedAt)
		case EventPermissionRequired:
			return WaitingForPermission(ev.ToolName, ev.ToolInput, ev.RequestID)
		case EventInputRequired:
			return WaitingForInput(ev.Question, ev.Options)
		case EventTaskCompleted:
			return Completed(ev.Output)
		case EventInitialized:
			// A late or duplicate init while a task runs carries no new
			// information.
			return cur
		}

	case KindWaitingForPermission:
		switch ev.Kind {
		case EventPermissionGranted:
			return Processing(cur.ToolName, now())
		case EventPermissionDenied:
			return Processing("", now())
		}

	case KindWaitingForInput:
		if ev.Kind == EventInputReceived {
			return Processing("", now())
		}

	case KindError:
		// A recoverable error accepts a new task, a late completion, or a
		// fresh init; anything else is an invalid transition.
		if cur.Recoverable {
			switch ev.Kind {
			case EventTaskStarted:
				return Processing("", now())
			case EventTaskCompleted:
				return Completed(ev.Output)
			case EventInitialized:
				return Idle("")
			}
		}

	case KindCompleted:
		if ev.Kind == EventTaskStarted {
			return Processing("", now())
		}
	}

	return Errored(
		fmt.Sprintf("invalid transition: state %q does not accept event %q", cur.Kind, ev.Kind),
		false,
	)
}
