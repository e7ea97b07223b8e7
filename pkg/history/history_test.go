package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T, maxTurns int) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "histories.json")
	return NewStore(path, maxTurns)
}

func TestBoundedAppend(t *testing.T) {
	const max = 20
	s := testStore(t, max)

	for i := 0; i < max+5; i++ {
		s.Append("42", Turn{Speaker: SpeakerUser, Text: fmt.Sprintf("msg %d", i)})
	}

	turns := s.Turns("42")
	if len(turns) != max {
		t.Fatalf("got %d turns, want %d", len(turns), max)
	}
	// The oldest 5 were evicted; the survivors keep their original order.
	if turns[0].Text != "msg 5" {
		t.Errorf("oldest surviving turn = %q, want %q", turns[0].Text, "msg 5")
	}
	if turns[max-1].Text != fmt.Sprintf("msg %d", max+4) {
		t.Errorf("newest turn = %q, want %q", turns[max-1].Text, fmt.Sprintf("msg %d", max+4))
	}
}

func TestReset(t *testing.T) {
	s := testStore(t, 20)
	s.Append("7", Turn{Speaker: SpeakerUser, Text: "hello"})
	s.Append("7", Turn{Speaker: SpeakerAgent, Text: "hey"})

	s.Reset("7")

	if n := s.Len("7"); n != 0 {
		t.Errorf("Len after reset = %d, want 0", n)
	}
	// Reset persists: a fresh store on the same path must also be empty.
	s2 := NewStore(s.path, 20)
	s2.Load()
	if n := s2.Len("7"); n != 0 {
		t.Errorf("reloaded Len after reset = %d, want 0", n)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.json"), 20)
	s.Load() // must not panic or fail

	if n := s.Len("1"); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestLoadCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "histories.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, 20)
	s.Load()

	if n := s.Len("1"); n != 0 {
		t.Errorf("Len after corrupt load = %d, want 0", n)
	}
	// The store must stay usable after a corrupt load.
	s.Append("1", Turn{Speaker: SpeakerUser, Text: "still works"})
	if n := s.Len("1"); n != 1 {
		t.Errorf("Len after append = %d, want 1", n)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "histories.json")

	s := NewStore(path, 20)
	s.Append("9", Turn{Speaker: SpeakerUser, Text: "how was your day"})
	s.Append("9", Turn{Speaker: SpeakerAgent, Text: "long. yours?"})

	s2 := NewStore(path, 20)
	s2.Load()

	turns := s2.Turns("9")
	if len(turns) != 2 {
		t.Fatalf("got %d turns after reload, want 2", len(turns))
	}
	if turns[0].Speaker != SpeakerUser || turns[0].Text != "how was your day" {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	if turns[1].Speaker != SpeakerAgent || turns[1].Text != "long. yours?" {
		t.Errorf("turn 1 = %+v", turns[1])
	}
}

func TestCounts(t *testing.T) {
	s := testStore(t, 20)
	s.Append("1", Turn{Speaker: SpeakerUser, Text: "a"})
	s.Append("1", Turn{Speaker: SpeakerAgent, Text: "b"})
	s.Append("2", Turn{Speaker: SpeakerUser, Text: "c"})

	counts := s.Counts()
	if counts["1"] != 2 || counts["2"] != 1 {
		t.Errorf("Counts = %v, want map[1:2 2:1]", counts)
	}
}
