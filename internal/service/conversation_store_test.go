package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SEPPAN-hub/aikomon/internal/models"
)

func TestConversationStore(t *testing.T) {
	const key = "C123:1700000000.000100"

	t.Run("recent on unknown key returns nil", func(t *testing.T) {
		store := NewConversationStore(40, 30)

		assert.Nil(t, store.Recent(key, 5))
	})

	t.Run("append then recent returns chronological order", func(t *testing.T) {
		store := NewConversationStore(40, 30)
		store.Append(key, models.RoleUser, "first question")
		store.Append(key, models.RoleAssistant, "first answer")
		store.Append(key, models.RoleUser, "second question")

		turns := store.Recent(key, 10)

		require.Len(t, turns, 3)
		assert.Equal(t, models.RoleUser, turns[0].Role)
		assert.Equal(t, "first question", turns[0].Content)
		assert.Equal(t, "first answer", turns[1].Content)
		assert.Equal(t, "second question", turns[2].Content)
	})

	t.Run("recent caps at requested count", func(t *testing.T) {
		store := NewConversationStore(40, 30)
		for i := 0; i < 8; i++ {
			store.Append(key, models.RoleUser, fmt.Sprintf("turn %d", i))
		}

		turns := store.Recent(key, 3)

		require.Len(t, turns, 3)
		assert.Equal(t, "turn 5", turns[0].Content)
		assert.Equal(t, "turn 7", turns[2].Content)
	})

	t.Run("exceeding the cap trims down to retain count", func(t *testing.T) {
		store := NewConversationStore(40, 30)
		for i := 0; i < 41; i++ {
			store.Append(key, models.RoleUser, fmt.Sprintf("turn %d", i))
		}

		turns := store.Recent(key, 100)

		require.Len(t, turns, 30)
		assert.Equal(t, "turn 11", turns[0].Content)
		assert.Equal(t, "turn 40", turns[29].Content)
	})

	t.Run("trim batches instead of firing every append", func(t *testing.T) {
		store := NewConversationStore(40, 30)
		for i := 0; i < 41; i++ {
			store.Append(key, models.RoleUser, fmt.Sprintf("turn %d", i))
		}

		// 30 retained; the next appends grow normally until the cap again.
		store.Append(key, models.RoleUser, "after trim")

		turns := store.Recent(key, 100)

		require.Len(t, turns, 31)
		assert.Equal(t, "after trim", turns[30].Content)
	})

	t.Run("keys are independent", func(t *testing.T) {
		store := NewConversationStore(40, 30)
		store.Append("C1:1.1", models.RoleUser, "in thread one")
		store.Append("C2:2.2", models.RoleUser, "in thread two")

		turns := store.Recent("C1:1.1", 10)

		require.Len(t, turns, 1)
		assert.Equal(t, "in thread one", turns[0].Content)
	})

	t.Run("recent returns a copy", func(t *testing.T) {
		store := NewConversationStore(40, 30)
		store.Append(key, models.RoleUser, "original")

		turns := store.Recent(key, 10)
		turns[0].Content = "mutated"

		again := store.Recent(key, 10)
		assert.Equal(t, "original", again[0].Content)
	})

	t.Run("concurrent appends never lose turns", func(t *testing.T) {
		store := NewConversationStore(1000, 1000)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					store.Append(key, models.RoleUser, "concurrent")
				}
			}()
		}
		wg.Wait()

		assert.Len(t, store.Recent(key, 1000), 200)
	})
}
