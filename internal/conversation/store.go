package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/bowerhall/lantern/internal/logger"
)

// Store is the authoritative in-memory session map. Every Append is followed
// by a full flush through the Persister while the write lock is held, so the
// durable snapshot never lags more than one exchange and never interleaves
// two writers.
//
// History is never trimmed; only reads are windowed. Stored history therefore
// grows without bound per sender.
type Store struct {
	mu        sync.RWMutex
	sessions  Sessions
	persister Persister
}

// Open loads the snapshot from p. Load never fails: a missing or corrupt
// snapshot is logged and replaced with an empty store.
func Open(p Persister) *Store {
	sessions, err := p.Load()
	if err != nil {
		logger.Warn("session store unreadable, starting empty", "error", err)
		sessions = nil
	}

	if sessions == nil {
		sessions = make(Sessions)
	}

	total := 0
	for _, turns := range sessions {
		total += len(turns)
	}
	logger.Info("session store loaded", "senders", len(sessions), "turns", total)

	return &Store{sessions: sessions, persister: p}
}

// RecentTurns returns up to k of the sender's most recent turns, oldest first.
// The result is a copy.
func (s *Store) RecentTurns(senderID string, k int) []Turn {
	if k <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[senderID]
	if len(turns) > k {
		turns = turns[len(turns)-k:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)

	return out
}

// Append records a turn for the sender and flushes the whole store. A flush
// failure is logged and returned, but the in-memory turn is kept.
func (s *Store) Append(senderID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[senderID] = append(s.sessions[senderID], turn)

	if err := s.persister.Save(s.sessions); err != nil {
		logger.Error("session store flush failed", "sender", senderID, "error", err)
		return fmt.Errorf("%w: %v", ErrFlushFailed, err)
	}

	return nil
}

// Len returns how many turns are stored for the sender.
func (s *Store) Len(senderID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions[senderID])
}

// Senders returns all known sender ids, sorted.
func (s *Store) Senders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Snapshot encodes the full store in the same JSON shape the file persister writes.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return encodeSessions(s.sessions)
}

func (s *Store) Close() error {
	return s.persister.Close()
}

func encodeSessions(sessions Sessions) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")

	if err := enc.Encode(sessions); err != nil {
		return nil, fmt.Errorf("encode sessions: %w", err)
	}

	return buf.Bytes(), nil
}
