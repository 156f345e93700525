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

package memoryBackend

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
)

var log = logrus.WithFields(logrus.Fields{
	"component": "memory",
	"backend":   "memory",
})

type sessionData struct {
	exchanges []memory.Exchange
}

type memoryBackend struct {
	sessions *lru.Cache
	mutex    sync.Mutex
	maxTurns int
}

// CreateMemoryBackend creates a Backend keeping the last "maxTurns" exchanges of at most "maxSessions" sessions
func CreateMemoryBackend(maxTurns int, maxSessions int) (memory.Backend, error) {
	if maxTurns <= 0 {
		return nil, fmt.Errorf("invalid max turns %d, expecting a strictly positive value", maxTurns)
	}
	sessions, err := lru.NewWithEvict(maxSessions, func(key interface{}, _ interface{}) {
		log.WithField("session_id", key).Debug("session evicted")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid max sessions %d (%w)", maxSessions, err)
	}
	return &memoryBackend{
		sessions: sessions,
		maxTurns: maxTurns,
	}, nil
}

// Destroy terminates the underlying storage
func (b *memoryBackend) Destroy() {
	b.sessions.Purge()
}

func (b *memoryBackend) Add(_ context.Context, sessionID string, exchange memory.Exchange) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var session *sessionData
	if value, ok := b.sessions.Get(sessionID); ok {
		session = value.(*sessionData)
	} else {
		session = &sessionData{}
		b.sessions.Add(sessionID, session)
	}

	session.exchanges = append(session.exchanges, exchange)
	if overflow := len(session.exchanges) - b.maxTurns; overflow > 0 {
		// Copy to let the evicted exchanges be garbage collected
		session.exchanges = append([]memory.Exchange{}, session.exchanges[overflow:]...)
	}
	return nil
}

func (b *memoryBackend) History(_ context.Context, sessionID string) ([]memory.Exchange, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	value, ok := b.sessions.Get(sessionID)
	if !ok {
		return []memory.Exchange{}, nil
	}
	session := value.(*sessionData)
	history := make([]memory.Exchange, len(session.exchanges))
	copy(history, session.exchanges)
	return history, nil
}

func (b *memoryBackend) Clear(_ context.Context, sessionID string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.sessions.Remove(sessionID)
	return nil
}

func (b *memoryBackend) Sessions(_ context.Context) ([]string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	keys := b.sessions.Keys()
	sessionIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		sessionIDs = append(sessionIDs, key.(string))
	}
	return sessionIDs, nil
}
