package service

import (
	"sync"
	"time"

	"github.com/SEPPAN-hub/aikomon/internal/models"
)

// ConversationStore keeps a bounded, ordered turn history per conversation key.
// History lives for the process's uptime only; losing it on restart is a
// documented non-goal, not a bug.
//
// Appends to one key are serialized by the store's mutex; Recent takes the read
// lock so lookups on different keys do not block each other.
type ConversationStore struct {
	mu    sync.RWMutex
	turns map[string][]models.ConversationTurn

	maxTurns    int
	retainTurns int

	now func() time.Time
}

// NewConversationStore creates a store that caps each key at maxTurns and, once
// the cap is exceeded, drops the oldest turns down to retainTurns. Keeping
// retainTurns below the cap batches trimming instead of trimming on every append.
func NewConversationStore(maxTurns, retainTurns int) *ConversationStore {
	if maxTurns <= 0 {
		maxTurns = 40
	}

	if retainTurns <= 0 || retainTurns > maxTurns {
		retainTurns = maxTurns
	}

	return &ConversationStore{
		turns:       make(map[string][]models.ConversationTurn),
		maxTurns:    maxTurns,
		retainTurns: retainTurns,
		now:         time.Now,
	}
}

// Append records one turn under key, creating the key's history lazily and
// trimming the oldest turns when the hard cap is exceeded.
func (s *ConversationStore) Append(key string, role models.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.turns[key], models.ConversationTurn{
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	})

	if len(turns) > s.maxTurns {
		// Copy so the trimmed prefix becomes collectable.
		kept := make([]models.ConversationTurn, s.retainTurns)
		copy(kept, turns[len(turns)-s.retainTurns:])
		turns = kept
	}

	s.turns[key] = turns
}

// Recent returns the last maxTurns turns for key in chronological order.
// Asking for more turns than exist returns all existing turns.
func (s *ConversationStore) Recent(key string, maxTurns int) []models.ConversationTurn {
	if maxTurns <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[key]
	if len(turns) == 0 {
		return nil
	}

	if maxTurns > len(turns) {
		maxTurns = len(turns)
	}

	out := make([]models.ConversationTurn, maxTurns)
	copy(out, turns[len(turns)-maxTurns:])

	return out
}
