// Package history provides the bounded per-conversation turn log and its
// snapshot persistence. Each conversation keeps at most the configured
// number of most recent turns (user and agent combined, FIFO eviction).
//
// The on-disk snapshot is a single JSON object mapping conversation id to
// an ordered array of speaker-tagged turn strings. A missing or corrupt
// snapshot loads as an empty map; persistence failures are logged and the
// in-memory state stays authoritative for the rest of the process.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one utterance within a conversation.
type Turn struct {
	Speaker Speaker
	Text    string
}

// DefaultMaxTurns caps combined user+agent turns per conversation.
const DefaultMaxTurns = 20

// Store holds all conversation histories. Mutations happen on the single
// poll-processing path; the mutex exists so the read-only diagnostics
// surface can take snapshots concurrently.
type Store struct {
	path string
	max  int

	mu    sync.Mutex
	chats map[string][]Turn
}

// NewStore creates a store persisting to path, capped at maxTurns per
// conversation.
func NewStore(path string, maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		path:  path,
		max:   maxTurns,
		chats: make(map[string][]Turn),
	}
}

// Load reads the snapshot from disk. Absence or a parse failure degrades
// to an empty map — never fatal.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("history snapshot unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("history snapshot corrupt, starting empty", "path", s.path, "error", err)
		return
	}

	chats := make(map[string][]Turn, len(raw))
	for id, lines := range raw {
		turns := make([]Turn, 0, len(lines))
		for _, line := range lines {
			if t, ok := parseTurn(line); ok {
				turns = append(turns, t)
			}
		}
		if len(turns) > s.max {
			turns = turns[len(turns)-s.max:]
		}
		chats[id] = turns
	}

	s.mu.Lock()
	s.chats = chats
	s.mu.Unlock()
	slog.Info("history loaded", "path", s.path, "conversations", len(chats))
}

// Append adds a turn to a conversation, evicts the oldest turns past the
// cap, and persists the snapshot synchronously.
func (s *Store) Append(chatID string, t Turn) {
	s.mu.Lock()
	turns := append(s.chats[chatID], t)
	if len(turns) > s.max {
		turns = turns[len(turns)-s.max:]
	}
	s.chats[chatID] = turns
	s.mu.Unlock()

	s.save()
}

// Turns returns a copy of a conversation's history, oldest first.
func (s *Store) Turns(chatID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]Turn, len(s.chats[chatID]))
	copy(turns, s.chats[chatID])
	return turns
}

// Len returns the number of stored turns for a conversation.
func (s *Store) Len(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats[chatID])
}

// Reset drops a conversation's history entirely and persists.
func (s *Store) Reset(chatID string) {
	s.mu.Lock()
	delete(s.chats, chatID)
	s.mu.Unlock()

	s.save()
}

// Counts returns per-conversation turn counts, for diagnostics.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.chats))
	for id, turns := range s.chats {
		counts[id] = len(turns)
	}
	return counts
}

// save writes the whole-map snapshot. Failures are logged, not returned:
// delivery and persistence are not transactional, and the in-memory map
// remains authoritative.
func (s *Store) save() {
	s.mu.Lock()
	raw := make(map[string][]string, len(s.chats))
	for id, turns := range s.chats {
		lines := make([]string, len(turns))
		for i, t := range turns {
			lines[i] = formatTurn(t)
		}
		raw[id] = lines
	}
	s.mu.Unlock()

	data, err := json.Marshal(raw)
	if err != nil {
		slog.Error("history snapshot marshal failed", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		slog.Error("history snapshot write failed", "path", s.path, "error", err)
	}
}

func formatTurn(t Turn) string {
	return fmt.Sprintf("[%s] %s", t.Speaker, t.Text)
}

// parseTurn reads a speaker-tagged snapshot line. Lines without a known
// tag are dropped rather than failing the whole load.
func parseTurn(line string) (Turn, bool) {
	for _, sp := range []Speaker{SpeakerUser, SpeakerAgent} {
		prefix := "[" + string(sp) + "] "
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return Turn{Speaker: sp, Text: rest}, true
		}
	}
	return Turn{}, false
}
