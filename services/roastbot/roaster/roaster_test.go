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

package roaster

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/llm"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory/memoryBackend"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/metrics"
)

type fakeRetriever struct {
	context   string
	err       error
	lastTheme string
	lastTopK  int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string, topK int, theme string) (string, error) {
	r.lastTopK = topK
	r.lastTheme = theme
	return r.context, r.err
}

type fakeCompleter struct {
	reply    string
	deltas   []string
	err      error
	requests []llm.Request
}

func (c *fakeCompleter) Complete(_ context.Context, request llm.Request) (llm.Response, error) {
	c.requests = append(c.requests, request)
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Content: c.reply, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}

func (c *fakeCompleter) Stream(_ context.Context, request llm.Request, onDelta func(string) error) (llm.Response, error) {
	c.requests = append(c.requests, request)
	for _, delta := range c.deltas {
		if err := onDelta(delta); err != nil {
			return llm.Response{}, err
		}
	}
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Content: strings.Join(c.deltas, "")}, nil
}

type fakeProvider struct {
	completer    *fakeCompleter
	lastOverride string
}

func (p *fakeProvider) Completer(apiKeyOverride string) (llm.Completer, error) {
	p.lastOverride = apiKeyOverride
	if p.completer == nil {
		return nil, &llm.MissingAPIKeyError{}
	}
	return p.completer, nil
}

type fixture struct {
	roaster   *Roaster
	retriever *fakeRetriever
	completer *fakeCompleter
	provider  *fakeProvider
	memory    memory.Backend
}

func createFixture(t *testing.T) *fixture {
	backend, err := memoryBackend.CreateMemoryBackend(memory.DefaultMaxTurns, memory.DefaultMaxSessions)
	require.NoError(t, err)
	t.Cleanup(backend.Destroy)

	f := &fixture{
		retriever: &fakeRetriever{context: "Your code is spaghetti."},
		completer: &fakeCompleter{reply: "Nice try, junior."},
		memory:    backend,
	}
	f.provider = &fakeProvider{completer: f.completer}
	f.roaster = New(f.retriever, f.provider, backend, metrics.New(), DefaultOptions)
	return f
}

func (f *fixture) history(t *testing.T, sessionID string) []memory.Exchange {
	history, err := f.memory.History(context.Background(), sessionID)
	require.NoError(t, err)
	return history
}

func TestRoastEmptyMessage(t *testing.T) {
	f := createFixture(t)

	for _, message := range []string{"", "   ", "\n\t"} {
		reply, err := f.roaster.Roast(context.Background(), Turn{SessionID: "s1", Message: message})
		require.NoError(t, err)
		assert.Equal(t, EmptyMessageReply, reply.Text)
		assert.True(t, reply.Fallback)
		assert.Equal(t, metrics.OutcomeEmpty, reply.Outcome)
	}
	assert.Empty(t, f.completer.requests)
	assert.Empty(t, f.history(t, "s1"))
}

func TestRoastWithoutAPIKey(t *testing.T) {
	f := createFixture(t)
	f.provider.completer = nil

	reply, err := f.roaster.Roast(context.Background(), Turn{SessionID: "s1", Message: "roast me"})
	require.NoError(t, err)
	assert.Equal(t, NoAPIKeyReply, reply.Text)
	assert.True(t, reply.Fallback)
	assert.Equal(t, metrics.OutcomeNoKey, reply.Outcome)
	assert.Empty(t, f.history(t, "s1"))
}

func TestRoastInvalidSession(t *testing.T) {
	f := createFixture(t)

	_, err := f.roaster.Roast(context.Background(), Turn{SessionID: "../nope", Message: "roast me"})
	invalidErr := &memory.InvalidSessionIDError{}
	assert.ErrorAs(t, err, &invalidErr)
}

func TestRoast(t *testing.T) {
	f := createFixture(t)

	reply, err := f.roaster.Roast(context.Background(), Turn{
		SessionID:      "s1",
		Message:        "  I use tabs  ",
		Theme:          "coding",
		APIKeyOverride: "gsk_user",
	})
	require.NoError(t, err)
	assert.Equal(t, "Nice try, junior.", reply.Text)
	assert.False(t, reply.Fallback)
	assert.Equal(t, metrics.OutcomeOK, reply.Outcome)
	assert.Equal(t, 15, reply.Usage.TotalTokens)

	assert.Equal(t, "gsk_user", f.provider.lastOverride)
	assert.Equal(t, "coding", f.retriever.lastTheme)
	assert.Equal(t, 3, f.retriever.lastTopK)

	require.Len(t, f.completer.requests, 1)
	assert.Equal(t, SystemPrompt, f.completer.requests[0].SystemPrompt)
	assert.Equal(
		t,
		"Roast context (from knowledge base):\nYour code is spaghetti.\n\n"+
			"Recent conversation:\nNo previous conversation.\n\n"+
			"Current message: I use tabs",
		f.completer.requests[0].UserPrompt,
	)

	history := f.history(t, "s1")
	require.Len(t, history, 1)
	assert.Equal(t, "I use tabs", history[0].User)
	assert.Equal(t, "Nice try, junior.", history[0].Assistant)

	// The second turn sees the first one
	_, err = f.roaster.Roast(context.Background(), Turn{SessionID: "s1", Message: "and spaces"})
	require.NoError(t, err)
	require.Len(t, f.completer.requests, 2)
	assert.Contains(
		t,
		f.completer.requests[1].UserPrompt,
		"Recent conversation:\nUser: I use tabs\nAssistant: Nice try, junior.\n\nCurrent message: and spaces",
	)
}

func TestRoastAuthenticationFailure(t *testing.T) {
	f := createFixture(t)
	f.completer.err = &llm.AuthenticationError{Err: errors.New("401 invalid_api_key")}

	reply, err := f.roaster.Roast(context.Background(), Turn{SessionID: "s1", Message: "roast me"})
	require.NoError(t, err)
	assert.Equal(t, InvalidAPIKeyReply, reply.Text)
	assert.True(t, reply.Fallback)
	assert.Empty(t, f.history(t, "s1"))
}

func TestRoastFailureIsTruncated(t *testing.T) {
	f := createFixture(t)
	f.completer.err = errors.New(strings.Repeat("x", 150))

	reply, err := f.roaster.Roast(context.Background(), Turn{SessionID: "s1", Message: "roast me"})
	require.NoError(t, err)
	assert.Equal(t, "Even I broke trying to roast you. Error: "+strings.Repeat("x", 100), reply.Text)
	assert.True(t, reply.Fallback)
	assert.Equal(t, metrics.OutcomeFallback, reply.Outcome)
	assert.Empty(t, f.history(t, "s1"))
}

func TestRoastRetrievalFailure(t *testing.T) {
	f := createFixture(t)
	f.retriever.err = errors.New("index unavailable")

	reply, err := f.roaster.Roast(context.Background(), Turn{SessionID: "s1", Message: "roast me"})
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.True(t, strings.HasPrefix(reply.Text, "Even I broke trying to roast you. Error: "))
	assert.Empty(t, f.completer.requests)
}

func TestRoastStream(t *testing.T) {
	f := createFixture(t)
	f.completer.deltas = []string{"Your ", "commits ", "cry."}

	deltas := []string{}
	reply, err := f.roaster.RoastStream(context.Background(), Turn{SessionID: "s1", Message: "roast me"}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Your ", "commits ", "cry."}, deltas)
	assert.Equal(t, "Your commits cry.", reply.Text)
	assert.False(t, reply.Fallback)

	history := f.history(t, "s1")
	require.Len(t, history, 1)
	assert.Equal(t, "Your commits cry.", history[0].Assistant)
}

func TestRoastStreamFallback(t *testing.T) {
	f := createFixture(t)

	deltas := []string{}
	reply, err := f.roaster.RoastStream(context.Background(), Turn{SessionID: "s1", Message: " "}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{EmptyMessageReply}, deltas)
	assert.Equal(t, EmptyMessageReply, reply.Text)
}

func TestRoastStreamFailure(t *testing.T) {
	f := createFixture(t)
	f.completer.err = errors.New("connection reset")

	deltas := []string{}
	reply, err := f.roaster.RoastStream(context.Background(), Turn{SessionID: "s1", Message: "roast me"}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Even I broke trying to roast you. Error: connection reset", reply.Text)
	assert.Equal(t, []string{reply.Text}, deltas)
	assert.Empty(t, f.history(t, "s1"))
}

func TestBuildUserPrompt(t *testing.T) {
	assert.Equal(
		t,
		"Roast context (from knowledge base):\nctx\n\nRecent conversation:\nhist\n\nCurrent message: msg",
		BuildUserPrompt("ctx", "hist", "msg"),
	)
}
