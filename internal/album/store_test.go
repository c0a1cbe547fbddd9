package album

import (
	"testing"
	"time"

	kit "albumbot/internal/transport"
)

func TestStoreAppendDrainClear(t *testing.T) {
	t.Parallel()
	s := NewStore()
	chat := kit.ChatTarget{ChatID: 1}

	if n := s.Append(chat, MediaItem{FileID: "a"}); n != 1 {
		t.Fatalf("count after first append = %d, want 1", n)
	}
	if n := s.Append(chat, MediaItem{FileID: "b"}); n != 2 {
		t.Fatalf("count after second append = %d, want 2", n)
	}
	if n := s.Count(chat); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}

	items := s.Drain(chat)
	if len(items) != 2 || items[0].FileID != "a" || items[1].FileID != "b" {
		t.Fatalf("Drain = %+v, want a,b in order", items)
	}
	if n := s.Count(chat); n != 0 {
		t.Fatalf("Count after drain = %d, want 0", n)
	}
	if items := s.Drain(chat); items != nil {
		t.Fatalf("second Drain = %+v, want nil", items)
	}

	s.Append(chat, MediaItem{FileID: "c"})
	if n := s.Clear(chat); n != 1 {
		t.Fatalf("Clear dropped = %d, want 1", n)
	}
	if n := s.Count(chat); n != 0 {
		t.Fatalf("Count after clear = %d, want 0", n)
	}
}

func TestStoreDrainIsSnapshot(t *testing.T) {
	t.Parallel()
	s := NewStore()
	chat := kit.ChatTarget{ChatID: 2}
	s.Append(chat, MediaItem{FileID: "a"})

	snapshot := s.Drain(chat)
	// Appends after the drain open a fresh cycle and must not show up in
	// the snapshot.
	s.Append(chat, MediaItem{FileID: "b"})
	if len(snapshot) != 1 || snapshot[0].FileID != "a" {
		t.Fatalf("snapshot mutated: %+v", snapshot)
	}
	if n := s.Count(chat); n != 1 {
		t.Fatalf("new cycle count = %d, want 1", n)
	}
}

func TestStorePruneIdle(t *testing.T) {
	t.Parallel()
	s := NewStore()
	emptyChat := kit.ChatTarget{ChatID: 1}
	busyChat := kit.ChatTarget{ChatID: 2}

	s.Append(emptyChat, MediaItem{FileID: "a"})
	s.Drain(emptyChat)
	s.Append(busyChat, MediaItem{FileID: "b"})

	time.Sleep(10 * time.Millisecond)
	if n := s.PruneIdle(0); n != 1 {
		t.Fatalf("pruned = %d, want 1 (only the drained chat)", n)
	}
	if n := s.Count(busyChat); n != 1 {
		t.Fatalf("busy chat lost items: count = %d, want 1", n)
	}
}

func TestStoreChatsAreIndependent(t *testing.T) {
	t.Parallel()
	s := NewStore()
	a := kit.ChatTarget{ChatID: 1}
	b := kit.ChatTarget{ChatID: 2}
	s.Append(a, MediaItem{FileID: "a"})
	s.Append(b, MediaItem{FileID: "b"})

	s.Clear(a)
	if n := s.Count(b); n != 1 {
		t.Fatalf("clearing one chat touched another: count = %d, want 1", n)
	}
}
