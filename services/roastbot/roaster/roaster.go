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
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/llm"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
	"github.com/gdg-charusat/super-roast-bot/services/roastbot/metrics"
)

var log = logrus.WithField("component", "roaster")

// Retriever provides the context of a message
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, theme string) (string, error)
}

// CompleterProvider provides the LLM client for an optional API key override
type CompleterProvider interface {
	Completer(apiKeyOverride string) (llm.Completer, error)
}

type Options struct {
	TopK         int
	SystemPrompt string
}

var DefaultOptions = Options{
	TopK:         3,
	SystemPrompt: SystemPrompt,
}

// Turn is a message sent by a user in a session
type Turn struct {
	SessionID      string
	Message        string
	Theme          string
	APIKeyOverride string
}

// Reply is the answer to a turn.
//
// Fallback replies are canned messages sent in place of a generated roast, they are not remembered.
type Reply struct {
	Text     string
	Fallback bool
	Outcome  string
	Usage    llm.Usage
}

// Roaster generates the replies of the bot, one turn at a time
type Roaster struct {
	retriever Retriever
	provider  CompleterProvider
	memory    memory.Backend
	metrics   *metrics.Metrics
	options   Options
}

func New(
	retriever Retriever,
	provider CompleterProvider,
	memoryBackend memory.Backend,
	m *metrics.Metrics,
	options Options,
) *Roaster {
	if options.TopK <= 0 {
		options.TopK = DefaultOptions.TopK
	}
	if options.SystemPrompt == "" {
		options.SystemPrompt = DefaultOptions.SystemPrompt
	}
	return &Roaster{
		retriever: retriever,
		provider:  provider,
		memory:    memoryBackend,
		metrics:   m,
		options:   options,
	}
}

func (r *Roaster) fallback(text string, outcome string) Reply {
	r.metrics.ObserveRoast(outcome)
	return Reply{Text: text, Fallback: true, Outcome: outcome}
}

func (r *Roaster) failure(turnLog *logrus.Entry, err error) Reply {
	authErr := &llm.AuthenticationError{}
	if errors.As(err, &authErr) {
		turnLog.WithField("error", err).Warn("LLM provider rejected the API key")
		return r.fallback(InvalidAPIKeyReply, metrics.OutcomeFallback)
	}
	turnLog.WithField("error", err).Error("unable to generate a roast")
	return r.fallback(failureReply(err), metrics.OutcomeFallback)
}

type preparedTurn struct {
	completer llm.Completer
	request   llm.Request
	message   string
	log       *logrus.Entry
}

// prepare validates the turn and builds the LLM request, it returns a non-nil reply when the turn needs no generation
func (r *Roaster) prepare(ctx context.Context, turn Turn) (*preparedTurn, *Reply, error) {
	if err := memory.ValidateSessionID(turn.SessionID); err != nil {
		return nil, nil, err
	}
	turnLog := log.WithField("session_id", turn.SessionID)

	message := strings.TrimSpace(turn.Message)
	if message == "" {
		reply := r.fallback(EmptyMessageReply, metrics.OutcomeEmpty)
		return nil, &reply, nil
	}

	completer, err := r.provider.Completer(turn.APIKeyOverride)
	if err != nil {
		missingKeyErr := &llm.MissingAPIKeyError{}
		if errors.As(err, &missingKeyErr) {
			reply := r.fallback(NoAPIKeyReply, metrics.OutcomeNoKey)
			return nil, &reply, nil
		}
		reply := r.failure(turnLog, err)
		return nil, &reply, nil
	}

	roastContext, err := r.retriever.Retrieve(ctx, message, r.options.TopK, turn.Theme)
	if err != nil {
		reply := r.failure(turnLog, fmt.Errorf("unable to retrieve the roast context (%w)", err))
		return nil, &reply, nil
	}

	history, err := r.memory.History(ctx, turn.SessionID)
	if err != nil {
		reply := r.failure(turnLog, fmt.Errorf("unable to retrieve the conversation (%w)", err))
		return nil, &reply, nil
	}

	return &preparedTurn{
		completer: completer,
		request: llm.Request{
			SystemPrompt: r.options.SystemPrompt,
			UserPrompt:   BuildUserPrompt(roastContext, memory.Format(history), message),
		},
		message: message,
		log:     turnLog,
	}, nil, nil
}

func (r *Roaster) remember(ctx context.Context, turn Turn, prepared *preparedTurn, response llm.Response) Reply {
	r.metrics.ObserveLLMRequest(response.Duration, response.Usage.PromptTokens, response.Usage.CompletionTokens)
	r.metrics.ObserveRoast(metrics.OutcomeOK)

	err := r.memory.Add(ctx, turn.SessionID, memory.Exchange{
		User:      prepared.message,
		Assistant: response.Content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		prepared.log.WithField("error", err).Warn("unable to remember the exchange")
	}

	prepared.log.WithField("tokens", response.Usage.TotalTokens).Debug("roast served")
	return Reply{
		Text:    response.Content,
		Outcome: metrics.OutcomeOK,
		Usage:   response.Usage,
	}
}

// Roast generates the reply to a turn.
//
// Errors are only returned for invalid turns, failures to generate a roast result in a fallback reply.
func (r *Roaster) Roast(ctx context.Context, turn Turn) (Reply, error) {
	prepared, reply, err := r.prepare(ctx, turn)
	if err != nil {
		return Reply{}, err
	}
	if reply != nil {
		return *reply, nil
	}

	response, err := prepared.completer.Complete(ctx, prepared.request)
	if err != nil {
		return r.failure(prepared.log, err), nil
	}
	return r.remember(ctx, turn, prepared, response), nil
}

// RoastStream generates the reply to a turn, calling onDelta with every piece of text as it is generated.
//
// Fallback replies are sent to onDelta as a single piece, the concatenation of the pieces is always the reply text
// unless the generation fails midway.
func (r *Roaster) RoastStream(ctx context.Context, turn Turn, onDelta func(delta string) error) (Reply, error) {
	prepared, reply, err := r.prepare(ctx, turn)
	if err != nil {
		return Reply{}, err
	}
	if reply != nil {
		return *reply, onDelta(reply.Text)
	}

	response, err := prepared.completer.Stream(ctx, prepared.request, onDelta)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		failure := r.failure(prepared.log, err)
		return failure, onDelta(failure.Text)
	}
	return r.remember(ctx, turn, prepared, response), nil
}
