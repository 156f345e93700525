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

package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "ratelimit")

// DefaultMaxTrackedClients bounds the number of clients whose request log is kept,
// the least recently seen client is forgotten first.
const DefaultMaxTrackedClients = 10000

type LimitExceededError struct {
	ClientID string
	Wait     time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for client %q, retry in %s", e.ClientID, e.Wait.Round(time.Second))
}

// WaitSeconds returns the wait duration rounded up to the next second, as expected by a Retry-After header
func (e *LimitExceededError) WaitSeconds() int {
	return int(math.Ceil(e.Wait.Seconds()))
}

type requestLog struct {
	timestamps []time.Time
}

// prune drops the timestamps that are outside of the window ending at now
func (l *requestLog) prune(windowStart time.Time) {
	firstKept := 0
	for firstKept < len(l.timestamps) && !l.timestamps[firstKept].After(windowStart) {
		firstKept++
	}
	l.timestamps = l.timestamps[firstKept:]
}

// Limiter is a sliding window log rate limiter.
//
// It tracks the timestamps of the requests of each client and allows at most
// maxRequests during any window of the given duration.
type Limiter struct {
	maxRequests int
	window      time.Duration
	mutex       sync.Mutex
	clients     *lru.Cache
	now         func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source, mostly useful for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithMaxTrackedClients overrides DefaultMaxTrackedClients
func WithMaxTrackedClients(maxTrackedClients int) Option {
	return func(l *Limiter) {
		clients, err := lru.New(maxTrackedClients)
		if err != nil {
			log.WithField("max_tracked_clients", maxTrackedClients).Warn("invalid max tracked clients, ignoring")
			return
		}
		l.clients = clients
	}
}

func New(maxRequests int, window time.Duration, opts ...Option) (*Limiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("invalid max requests %d, expecting a strictly positive value", maxRequests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("invalid window %s, expecting a strictly positive duration", window)
	}
	clients, err := lru.New(DefaultMaxTrackedClients)
	if err != nil {
		return nil, err
	}
	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		clients:     clients,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) MaxRequests() int {
	return l.maxRequests
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

// retrieveLog must be called while holding the mutex
func (l *Limiter) retrieveLog(clientID string, now time.Time) *requestLog {
	var history *requestLog
	if value, ok := l.clients.Get(clientID); ok {
		history = value.(*requestLog)
	} else {
		history = &requestLog{}
		l.clients.Add(clientID, history)
	}
	history.prune(now.Add(-l.window))
	return history
}

// Allow checks if the client is allowed to make a request now, if it is the request is recorded.
func (l *Limiter) Allow(clientID string) bool {
	now := l.now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	history := l.retrieveLog(clientID, now)
	if len(history.timestamps) >= l.maxRequests {
		return false
	}

	history.timestamps = append(history.timestamps, now)
	return true
}

// WaitTime computes how long the client needs to wait before its next request is allowed, 0 if it is allowed now.
func (l *Limiter) WaitTime(clientID string) time.Duration {
	now := l.now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	history := l.retrieveLog(clientID, now)
	if len(history.timestamps) < l.maxRequests {
		return 0
	}

	wait := history.timestamps[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Check combines Allow and WaitTime, returning a *LimitExceededError when the request is rejected
func (l *Limiter) Check(clientID string) error {
	if l.Allow(clientID) {
		return nil
	}
	return &LimitExceededError{
		ClientID: clientID,
		Wait:     l.WaitTime(clientID),
	}
}
