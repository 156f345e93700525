// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
)

func makeExchange(i int) memory.Exchange {
	return memory.Exchange{
		User:      fmt.Sprintf("message #%d", i),
		Assistant: fmt.Sprintf("roast #%d", i),
		CreatedAt: time.Date(2024, 1, 1, 12, 0, i, 0, time.UTC),
	}
}

// RunSuite runs the shared memory backend test suite against backends created with the given function
func RunSuite(t *testing.T, createBackend func(maxTurns int) memory.Backend, destroyBackend func(memory.Backend)) {
	t.Run("TestUnknownSessionHasEmptyHistory", func(t *testing.T) {
		b := createBackend(memory.DefaultMaxTurns)
		defer destroyBackend(b)

		history, err := b.History(context.Background(), "unknown")
		assert.NoError(t, err)
		assert.Empty(t, history)
		assert.Equal(t, memory.NoHistory, memory.Format(history))
	})

	t.Run("TestAddAndRetrieveHistory", func(t *testing.T) {
		ctx := context.Background()
		b := createBackend(memory.DefaultMaxTurns)
		defer destroyBackend(b)

		for i := 0; i < 3; i++ {
			assert.NoError(t, b.Add(ctx, "session", makeExchange(i)))
		}

		history, err := b.History(ctx, "session")
		assert.NoError(t, err)
		assert.Len(t, history, 3)
		for i, exchange := range history {
			expected := makeExchange(i)
			assert.Equal(t, expected.User, exchange.User)
			assert.Equal(t, expected.Assistant, exchange.Assistant)
			assert.True(t, expected.CreatedAt.Equal(exchange.CreatedAt))
		}
	})

	t.Run("TestHistoryIsBoundedToMaxTurns", func(t *testing.T) {
		ctx := context.Background()
		b := createBackend(4)
		defer destroyBackend(b)

		for i := 0; i < 11; i++ {
			assert.NoError(t, b.Add(ctx, "session", makeExchange(i)))

			history, err := b.History(ctx, "session")
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(history), 4)
		}

		history, err := b.History(ctx, "session")
		assert.NoError(t, err)
		assert.Len(t, history, 4)
		// Oldest exchanges are evicted first
		assert.Equal(t, "message #7", history[0].User)
		assert.Equal(t, "roast #7", history[0].Assistant)
		assert.Equal(t, "message #10", history[3].User)
		assert.Equal(t, "roast #10", history[3].Assistant)
	})

	t.Run("TestSessionsAreIndependent", func(t *testing.T) {
		ctx := context.Background()
		b := createBackend(memory.DefaultMaxTurns)
		defer destroyBackend(b)

		assert.NoError(t, b.Add(ctx, "session-a", makeExchange(1)))
		assert.NoError(t, b.Add(ctx, "session-b", makeExchange(2)))
		assert.NoError(t, b.Add(ctx, "session-b", makeExchange(3)))

		historyA, err := b.History(ctx, "session-a")
		assert.NoError(t, err)
		assert.Len(t, historyA, 1)

		historyB, err := b.History(ctx, "session-b")
		assert.NoError(t, err)
		assert.Len(t, historyB, 2)

		sessions, err := b.Sessions(ctx)
		assert.NoError(t, err)
		assert.ElementsMatch(t, []string{"session-a", "session-b"}, sessions)
	})

	t.Run("TestClear", func(t *testing.T) {
		ctx := context.Background()
		b := createBackend(memory.DefaultMaxTurns)
		defer destroyBackend(b)

		assert.NoError(t, b.Add(ctx, "session-a", makeExchange(1)))
		assert.NoError(t, b.Add(ctx, "session-b", makeExchange(2)))

		assert.NoError(t, b.Clear(ctx, "session-a"))

		history, err := b.History(ctx, "session-a")
		assert.NoError(t, err)
		assert.Empty(t, history)

		history, err = b.History(ctx, "session-b")
		assert.NoError(t, err)
		assert.Len(t, history, 1)

		sessions, err := b.Sessions(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []string{"session-b"}, sessions)

		// Clearing an unknown session is a no-op
		assert.NoError(t, b.Clear(ctx, "unknown"))

		// A cleared session can be reused
		assert.NoError(t, b.Add(ctx, "session-a", makeExchange(3)))
		history, err = b.History(ctx, "session-a")
		assert.NoError(t, err)
		assert.Len(t, history, 1)
		assert.Equal(t, "message #3", history[0].User)
	})

	t.Run("TestReturnedHistoryIsACopy", func(t *testing.T) {
		ctx := context.Background()
		b := createBackend(memory.DefaultMaxTurns)
		defer destroyBackend(b)

		assert.NoError(t, b.Add(ctx, "session", makeExchange(1)))

		history, err := b.History(ctx, "session")
		assert.NoError(t, err)
		history[0].User = "tampered"

		history, err = b.History(ctx, "session")
		assert.NoError(t, err)
		assert.Equal(t, "message #1", history[0].User)
	})

	t.Run("TestConcurrentAdd", func(t *testing.T) {
		ctx := context.Background()
		b := createBackend(5)
		defer destroyBackend(b)

		wg := sync.WaitGroup{}
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, b.Add(ctx, "session", makeExchange(i)))
			}(i)
		}
		wg.Wait()

		history, err := b.History(ctx, "session")
		assert.NoError(t, err)
		assert.Len(t, history, 5)
	})
}
