package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// taskActivity tracks the in-flight items of one task. admitMu serializes
// admission passes for the task (single writer at a time per task); the
// item map itself is guarded by the owning activeSet's mutex so resolution
// paths can remove indices without taking the admission lock.
type taskActivity struct {
	admitMu sync.Mutex
	items   map[int]time.Time
}

// activeSet is the authoritative in-memory record of which item indices are
// currently dispatched but unresolved, sharded per task so unrelated tasks
// never contend.
type activeSet struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*taskActivity
}

func newActiveSet() *activeSet {
	return &activeSet{tasks: make(map[uuid.UUID]*taskActivity)}
}

// activity returns the tracking entry for a task, creating it on first use.
func (s *activeSet) activity(taskID uuid.UUID) *taskActivity {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, ok := s.tasks[taskID]
	if !ok {
		act = &taskActivity{items: make(map[int]time.Time)}
		s.tasks[taskID] = act
	}
	return act
}

// add marks an item index as in flight.
func (s *activeSet) add(taskID uuid.UUID, index int) {
	act := s.activity(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	act.items[index] = time.Now().UTC()
}

// remove clears an item index once it has resolved.
func (s *activeSet) remove(taskID uuid.UUID, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if act, ok := s.tasks[taskID]; ok {
		delete(act.items, index)
	}
}

// has reports whether an item index is currently in flight.
func (s *activeSet) has(taskID uuid.UUID, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.tasks[taskID]
	if !ok {
		return false
	}
	_, inFlight := act.items[index]
	return inFlight
}

// count returns how many items of the task are in flight.
func (s *activeSet) count(taskID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.tasks[taskID]
	if !ok {
		return 0
	}
	return len(act.items)
}

// drop clears all tracking for a task. Called on finalize and cancel.
func (s *activeSet) drop(taskID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

// ages returns the time since dispatch for each in-flight item, keyed by
// index. Used by progress snapshots to surface stalled items.
func (s *activeSet) ages(taskID uuid.UUID) map[int]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, ok := s.tasks[taskID]
	if !ok || len(act.items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	ages := make(map[int]time.Duration, len(act.items))
	for index, since := range act.items {
		ages[index] = now.Sub(since)
	}
	return ages
}
