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
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

var placeholderAPIKeys = map[string]bool{
	"YOUR API KEY":           true,
	"your_groq_api_key_here": true,
}

// ValidateAPIKey cleans up an API key coming from the environment or a user and checks it is usable
func ValidateAPIKey(raw string) (string, bool) {
	key := strings.TrimSpace(raw)
	key = strings.NewReplacer(`"`, "", `'`, "").Replace(key)
	key = strings.TrimSpace(key)
	if key == "" || placeholderAPIKeys[key] {
		return "", false
	}
	return key, true
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
