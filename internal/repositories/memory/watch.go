package memory

import (
	"context"

	"cargoride/pkg/livefeed"
)

type change struct {
	key    string
	before any
	after  any
}

// watcher coalesces notifications: a slow consumer sees the latest snapshot, not every commit.
type watcher struct {
	match  func(change) bool
	notify chan struct{}
}

func (s *Store) notifyLocked(changes []change) {
	for _, w := range s.watchers {
		for _, c := range changes {
			if !w.match(c) {
				continue
			}
			select {
			case w.notify <- struct{}{}:
			default:
			}
			break
		}
	}
}

func (s *Store) addWatcher(w *watcher) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.watchers[s.nextID] = w
	return s.nextID
}

func (s *Store) removeWatcher(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
}

func watch[T any](ctx context.Context, s *Store, match func(change) bool, query func() T) *livefeed.Feed[T] {
	w := &watcher{match: match, notify: make(chan struct{}, 1)}
	id := s.addWatcher(w)

	return livefeed.Start(ctx, func(ctx context.Context, emit func(T) bool) error {
		defer s.removeWatcher(id)

		if !emit(query()) {
			return ctx.Err()
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.notify:
				if !emit(query()) {
					return ctx.Err()
				}
			}
		}
	})
}
