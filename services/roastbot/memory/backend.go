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

package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxTurns is the number of exchanges remembered per session
const DefaultMaxTurns = 10

// DefaultMaxSessions is the number of sessions kept by the in-memory backend
const DefaultMaxSessions = 1024

// NoHistory is the formatted history of a session without any exchange
const NoHistory = "No previous conversation."

// Exchange is one turn of a conversation, the user message and the matching assistant reply
type Exchange struct {
	User      string
	Assistant string
	CreatedAt time.Time
}

// Backend defines the interface for a conversation memory backend
type Backend interface {
	Destroy()

	Add(ctx context.Context, sessionID string, exchange Exchange) error
	History(ctx context.Context, sessionID string) ([]Exchange, error)
	Clear(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]string, error)
}

// Format renders the history as it is included in the prompt
func Format(history []Exchange) string {
	if len(history) == 0 {
		return NoHistory
	}
	entries := make([]string, 0, len(history))
	for _, exchange := range history {
		entries = append(entries, fmt.Sprintf("User: %s\nAssistant: %s", exchange.User, exchange.Assistant))
	}
	return strings.Join(entries, "\n\n")
}

var sessionIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateSessionID checks that a session id can safely be used as a storage key
func ValidateSessionID(sessionID string) error {
	if !sessionIDRegexp.MatchString(sessionID) {
		return &InvalidSessionIDError{SessionID: sessionID}
	}
	return nil
}

// InvalidSessionIDError is raised when a session id doesn't follow the expected format
type InvalidSessionIDError struct {
	SessionID string
}

func (e *InvalidSessionIDError) Error() string {
	return fmt.Sprintf("invalid session id %q, expecting 1 to 64 alphanumeric, '_' or '-' characters", e.SessionID)
}

// UnexpectedError is raised when the underlying storage fails
type UnexpectedError struct {
	err error
}

func NewUnexpectedError(format string, a ...interface{}) *UnexpectedError {
	return &UnexpectedError{
		err: fmt.Errorf(format, a...),
	}
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %s", e.err.Error())
}

func (e *UnexpectedError) Unwrap() error {
	return e.err
}
