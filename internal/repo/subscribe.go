package repo

import (
	"context"
	"log"
	"sync"

	"taskline/internal/domain"
)

type subscriber struct {
	mu     sync.Mutex
	closed bool
	fn     func([]domain.Task)
}

func (s *subscriber) deliver(tasks []domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(tasks)
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// SubscribeByOwner registers a snapshot callback for an owner's task list.
// The callback fires synchronously with the current list, then again after
// every mutation touching that owner. Unsubscribe is safe to call more than
// once, and no delivery happens after it returns.
func (r *Repo) SubscribeByOwner(ownerID string, onSnapshot func([]domain.Task)) func() {
	sub := &subscriber{fn: onSnapshot}
	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	if r.subs == nil {
		r.subs = map[string]map[int64]*subscriber{}
	}
	if r.subs[ownerID] == nil {
		r.subs[ownerID] = map[int64]*subscriber{}
	}
	r.subs[ownerID][id] = sub
	r.mu.Unlock()

	r.emit(context.Background(), ownerID, sub)

	return func() {
		sub.close()
		r.mu.Lock()
		defer r.mu.Unlock()
		if m, ok := r.subs[ownerID]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(r.subs, ownerID)
			}
		}
	}
}

func (r *Repo) notify(ctx context.Context, ownerID string) {
	r.mu.Lock()
	var subs []*subscriber
	for _, sub := range r.subs[ownerID] {
		subs = append(subs, sub)
	}
	r.mu.Unlock()
	for _, sub := range subs {
		r.emit(ctx, ownerID, sub)
	}
}

func (r *Repo) emit(ctx context.Context, ownerID string, sub *subscriber) {
	tasks, err := r.ListTasksByOwner(ctx, ownerID)
	if err != nil {
		log.Printf("subscribe: snapshot for owner %s failed: %v", ownerID, err)
		return
	}
	sub.deliver(tasks)
}
