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
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

const DefaultPoolSize = 16

// Pool provides a Client for the configured API key or for keys provided per request.
//
// Clients built for other keys are cached, indexed by the hash of the key.
type Pool struct {
	options       Options
	defaultClient *Client
	clients       *lru.Cache
	mutex         sync.Mutex
}

// NewPool creates a pool, defaultAPIKey can be invalid in which case only per request keys are usable
func NewPool(defaultAPIKey string, options Options, size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	clients, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		options: options,
		clients: clients,
	}
	if _, ok := ValidateAPIKey(defaultAPIKey); ok {
		p.defaultClient, err = NewClient(defaultAPIKey, options)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("no valid API key configured, only requests providing their own key will be served")
	}
	return p, nil
}

func (p *Pool) HasDefaultAPIKey() bool {
	return p.defaultClient != nil
}

func (p *Pool) Options() Options {
	return p.options
}

// Completer returns the client to use for the given key override.
//
// An empty or invalid override falls back to the configured key.
func (p *Pool) Completer(apiKeyOverride string) (Completer, error) {
	key, ok := ValidateAPIKey(apiKeyOverride)
	if !ok {
		if p.defaultClient == nil {
			return nil, &MissingAPIKeyError{}
		}
		return p.defaultClient, nil
	}
	keyHash := hashAPIKey(key)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if client, ok := p.clients.Get(keyHash); ok {
		return client.(*Client), nil
	}
	client, err := NewClient(key, p.options)
	if err != nil {
		return nil, err
	}
	p.clients.Add(keyHash, client)
	return client, nil
}
