package livequery

import (
	"sync"

	"taskline/internal/domain"
)

// Identity reports who is signed in. Implementations call every registered
// listener with the new owner id, or "" on sign-out.
type Identity interface {
	CurrentOwnerID() string
	OnAuthChange(fn func(ownerID string)) (unsubscribe func())
}

// Subscriber is the slice of the task store the view needs.
type Subscriber interface {
	SubscribeByOwner(ownerID string, onSnapshot func([]domain.Task)) (unsubscribe func())
}

// View mirrors the signed-in owner's task list. It holds at most one store
// subscription at a time, re-keyed whenever the identity changes, and exposes
// the latest full-list snapshot to any number of listeners. With nobody
// signed in it serves an empty list and touches no storage.
type View struct {
	store Subscriber

	mu        sync.Mutex
	owner     string
	seq       uint64
	tasks     []domain.Task
	listeners map[int64]func([]domain.Task)
	nextID    int64
	unsubSub  func()
	unsubAuth func()
	closed    bool
}

func New(store Subscriber, id Identity) *View {
	v := &View{
		store:     store,
		listeners: map[int64]func([]domain.Task){},
	}
	v.unsubAuth = id.OnAuthChange(v.SetOwner)
	v.SetOwner(id.CurrentOwnerID())
	return v
}

// SetOwner re-keys the view to a new owner. "" detaches from storage and
// resets to an empty list. Snapshots from a previous owner's subscription
// are discarded even if they arrive late.
func (v *View) SetOwner(ownerID string) {
	v.mu.Lock()
	if v.closed || ownerID == v.owner {
		v.mu.Unlock()
		return
	}
	release := v.unsubSub
	v.unsubSub = nil
	v.owner = ownerID
	v.seq++
	seq := v.seq
	v.tasks = nil
	v.mu.Unlock()

	if release != nil {
		release()
	}
	if ownerID == "" {
		v.apply(seq, []domain.Task{})
		return
	}
	// the store delivers the current list synchronously before returning
	unsub := v.store.SubscribeByOwner(ownerID, func(tasks []domain.Task) {
		v.apply(seq, tasks)
	})
	v.mu.Lock()
	if v.closed || v.seq != seq {
		v.mu.Unlock()
		unsub()
		return
	}
	v.unsubSub = unsub
	v.mu.Unlock()
}

func (v *View) apply(seq uint64, tasks []domain.Task) {
	v.mu.Lock()
	if v.closed || seq != v.seq {
		v.mu.Unlock()
		return
	}
	v.tasks = tasks
	fns := make([]func([]domain.Task), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(tasks)
	}
}

// Snapshot returns the latest list.
func (v *View) Snapshot() []domain.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Task, len(v.tasks))
	copy(out, v.tasks)
	return out
}

// OnChange registers a listener and fires it once with the current snapshot.
// The returned unsubscribe is idempotent.
func (v *View) OnChange(fn func([]domain.Task)) (unsubscribe func()) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		fn([]domain.Task{})
		return func() {}
	}
	v.nextID++
	id := v.nextID
	v.listeners[id] = fn
	current := make([]domain.Task, len(v.tasks))
	copy(current, v.tasks)
	v.mu.Unlock()

	fn(current)
	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

// Close detaches from the store and the identity stream. Safe to call more
// than once; listeners never fire afterwards.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.seq++
	releaseSub := v.unsubSub
	releaseAuth := v.unsubAuth
	v.unsubSub = nil
	v.unsubAuth = nil
	v.listeners = map[int64]func([]domain.Task){}
	v.mu.Unlock()

	if releaseSub != nil {
		releaseSub()
	}
	if releaseAuth != nil {
		releaseAuth()
	}
}
