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

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolWithoutDefaultKey(t *testing.T) {
	pool, err := NewPool("YOUR API KEY", DefaultOptions, 2)
	require.NoError(t, err)
	assert.False(t, pool.HasDefaultAPIKey())

	_, err = pool.Completer("")
	missingKeyErr := &MissingAPIKeyError{}
	assert.ErrorAs(t, err, &missingKeyErr)

	completer, err := pool.Completer("gsk_override")
	assert.NoError(t, err)
	assert.NotNil(t, completer)
}

func TestPoolFallsBackToDefaultKey(t *testing.T) {
	pool, err := NewPool("gsk_default", DefaultOptions, 2)
	require.NoError(t, err)
	assert.True(t, pool.HasDefaultAPIKey())

	defaultCompleter, err := pool.Completer("")
	require.NoError(t, err)

	completer, err := pool.Completer("  ")
	require.NoError(t, err)
	assert.Same(t, defaultCompleter, completer)

	completer, err = pool.Completer("your_groq_api_key_here")
	require.NoError(t, err)
	assert.Same(t, defaultCompleter, completer)
}

func TestPoolCachesOverrideClients(t *testing.T) {
	pool, err := NewPool("gsk_default", DefaultOptions, 2)
	require.NoError(t, err)

	first, err := pool.Completer("gsk_a")
	require.NoError(t, err)
	again, err := pool.Completer(`"gsk_a"`)
	require.NoError(t, err)
	assert.Same(t, first, again)

	other, err := pool.Completer("gsk_b")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, pool.clients.Len())

	_, err = pool.Completer("gsk_c")
	require.NoError(t, err)
	assert.Equal(t, 2, pool.clients.Len())
}
