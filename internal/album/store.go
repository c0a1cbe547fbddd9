package album

import (
	"sync"
	"time"

	kit "albumbot/internal/transport"
)

type chatState struct {
	items      []MediaItem
	lastActive time.Time
}

// Store holds the pending items of every chat. All mutation goes through
// the store mutex, and every handler re-checks the store at the moment it
// runs rather than trusting state captured earlier (a timer fire racing a
// clear must observe the clear).
type Store struct {
	mu    sync.Mutex
	chats map[kit.ChatTarget]*chatState
}

func NewStore() *Store {
	return &Store{chats: make(map[kit.ChatTarget]*chatState)}
}

// Append adds an item and returns the chat's new pending count.
func (s *Store) Append(chat kit.ChatTarget, it MediaItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[chat]
	if st == nil {
		st = &chatState{}
		s.chats[chat] = st
	}
	st.items = append(st.items, it)
	st.lastActive = time.Now()
	return len(st.items)
}

func (s *Store) Count(chat kit.ChatTarget) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.chats[chat]; st != nil {
		return len(st.items)
	}
	return 0
}

// Drain returns the pending items and clears the live list in one step.
// The returned slice is an ownership transfer: the store drops its
// reference, so an in-flight delivery is unaffected by later appends or
// clears on the same chat.
func (s *Store) Drain(chat kit.ChatTarget) []MediaItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[chat]
	if st == nil || len(st.items) == 0 {
		return nil
	}
	items := st.items
	st.items = nil
	st.lastActive = time.Now()
	return items
}

// Clear discards all pending items and returns how many were dropped.
func (s *Store) Clear(chat kit.ChatTarget) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[chat]
	if st == nil {
		return 0
	}
	n := len(st.items)
	st.items = nil
	st.lastActive = time.Now()
	return n
}

// PruneIdle drops empty chat entries that have been inactive longer than
// idleAfter. Entries that still hold items are never pruned.
func (s *Store) PruneIdle(idleAfter time.Duration) int {
	cutoff := time.Now().Add(-idleAfter)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for chat, st := range s.chats {
		if len(st.items) == 0 && st.lastActive.Before(cutoff) {
			delete(s.chats, chat)
			n++
		}
	}
	return n
}
